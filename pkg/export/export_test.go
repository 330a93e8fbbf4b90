package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/enrollmail/core/model"
)

func sample() []model.Email {
	return []model.Email{
		{ContactID: 1, Type: model.EmailBirthday, ScheduledAt: model.Date(2025, time.January, 18), Reason: "birthday, 14 days ahead"},
		{ContactID: 1, Type: model.EmailAEP, ScheduledAt: model.Date(2025, time.August, 18), Reason: "annual enrollment period, week 1"},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	want := "contactId,emailType,scheduledAt,reason\n" +
		"1,Birthday,2025-01-18,\"birthday, 14 days ahead\"\n" +
		"1,AEP,2025-08-18,\"annual enrollment period, week 1\"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "2025-08-18", out[1]["scheduledAt"])
	assert.Equal(t, "AEP", out[1]["emailType"])

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWrite_Format(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, "csv", nil))
	assert.ErrorIs(t, Write(&buf, "xml", nil), ErrUnsupportedFormat)
}

func TestFlatten(t *testing.T) {
	e := sample()
	out := Flatten([][]model.Email{{e[0]}, nil, {}, {e[1]}})
	assert.Equal(t, e, out)
	assert.NotNil(t, Flatten(nil))
}
