package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/enrollmail/core/model"
)

// ContactDef is a contact as written in a scenario file.
type ContactDef struct {
	ID            int64  `yaml:"id"`
	State         string `yaml:"state"`
	BirthDate     string `yaml:"birth_date,omitempty"`
	EffectiveDate string `yaml:"effective_date,omitempty"`
}

// ToModel parses the optional dates of the definition.
func (c ContactDef) ToModel() (model.Contact, error) {
	out := model.Contact{ID: c.ID, State: c.State}
	var err error
	if out.BirthDate, err = optionalDate(c.BirthDate); err != nil {
		return out, fmt.Errorf("contact %d birth_date: %w", c.ID, err)
	}
	if out.EffectiveDate, err = optionalDate(c.EffectiveDate); err != nil {
		return out, fmt.Errorf("contact %d effective_date: %w", c.ID, err)
	}
	return out, nil
}

// EmailDef is one expected email.
type EmailDef struct {
	Contact int64  `yaml:"contact"`
	Type    string `yaml:"type"`
	Date    string `yaml:"date"`
}

type Expected struct {
	Emails       []EmailDef `yaml:"emails"`
	Distribution *[4]int    `yaml:"aep_distribution,omitempty"`
	Failures     int        `yaml:"failures"`
}

// Scenario is a batch input with the emails it must produce, in batch order.
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Date        string       `yaml:"date"`
	Contacts    []ContactDef `yaml:"contacts"`
	Expected    Expected     `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	return &sc, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
