package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/KevinKickass/aquanest/internal/auth"
	"github.com/KevinKickass/aquanest/internal/device"
	"github.com/KevinKickass/aquanest/internal/types"
)

// SensorHistory returns the stored readings of every sensor of a pond.
func (c *Client) SensorHistory(ctx context.Context, s *auth.Session, pondID int) ([]types.SensorReading, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}
	readings := make([]types.SensorReading, 0)
	path := fmt.Sprintf("/datos-sensor/estanque/%d/history", pondID)
	if err := c.doJSON(ctx, s, http.MethodGet, path, nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// DayHistory holds the readings of one UTC day.
type DayHistory struct {
	Day         string  `json:"day"`
	Temperature []Point `json:"temperature"`
	Nitrate     []Point `json:"nitrate"`
}

// DailyHistory groups the stored readings of the pond's temperature and
// nitrate sensors by UTC day, oldest day first.
func (c *Client) DailyHistory(ctx context.Context, s *auth.Session, pondID int, catalog *device.Catalog) ([]DayHistory, error) {
	pond, err := c.GetPond(ctx, s, pondID)
	if err != nil {
		return nil, err
	}

	temp, hasTemp := pond.Sensor(device.KindTemperatureSensor, catalog)
	nitrate, hasNitrate := pond.Sensor(device.KindNitrateSensor, catalog)
	if !hasTemp && !hasNitrate {
		return []DayHistory{}, nil
	}

	readings, err := c.SensorHistory(ctx, s, pondID)
	if err != nil {
		return nil, err
	}

	return groupByDay(readings, sensorID(temp, hasTemp), sensorID(nitrate, hasNitrate)), nil
}

func sensorID(d types.Device, ok bool) int {
	if !ok {
		return -1
	}
	return d.ID
}

func groupByDay(readings []types.SensorReading, tempID, nitrateID int) []DayHistory {
	days := make(map[string]*DayHistory)
	for _, r := range readings {
		if r.Sensor == nil || r.Timestamp.IsZero() {
			continue
		}
		if r.Sensor.ID != tempID && r.Sensor.ID != nitrateID {
			continue
		}

		key := r.Timestamp.UTC().Format(time.DateOnly)
		day, ok := days[key]
		if !ok {
			day = &DayHistory{Day: key, Temperature: []Point{}, Nitrate: []Point{}}
			days[key] = day
		}

		p := Point{Timestamp: r.Timestamp, Value: r.Valor}
		if r.Sensor.ID == tempID {
			day.Temperature = append(day.Temperature, p)
		} else {
			day.Nitrate = append(day.Nitrate, p)
		}
	}

	out := make([]DayHistory, 0, len(days))
	for _, day := range days {
		sortPoints(day.Temperature)
		sortPoints(day.Nitrate)
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
