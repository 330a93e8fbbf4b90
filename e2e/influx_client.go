package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads back what the service wrote to InfluxDB.
type InfluxClient struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

// NewInfluxClient creates a client for a running server.
func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// CountPoints returns how many points of measurement were written in the
// last hour.
func (c *InfluxClient) CountPoints(ctx context.Context, measurement string) (int, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn: (r) => r._measurement == %q)`, c.bucket, measurement)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

// Close releases the underlying client resources.
func (c *InfluxClient) Close() { c.client.Close() }
