// services/fleet/internal/core/generator.go
package core

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"example.com/backstage/services/fleet/config"
)

// Generator produces plausible mission and sensor values from the
// configured numeric ranges. A non-zero seed makes runs reproducible.
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	sensors    config.SensorRanges
	battery    config.BatteryConfig
	sim        config.SimulationConfig
	locations  config.LocationConfig
	routeNames []string
}

// NewGenerator builds a generator over the configured ranges.
func NewGenerator(cfg *config.Config) *Generator {
	seed := cfg.Simulation.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	routes := make([]string, 0, 20)
	for i := 1; i <= 20; i++ {
		routes = append(routes, fmt.Sprintf("ROUTE%d", i))
	}

	return &Generator{
		rng:        rand.New(rand.NewSource(seed)),
		sensors:    cfg.Sensors,
		battery:    cfg.Battery,
		sim:        cfg.Simulation,
		locations:  cfg.Locations,
		routeNames: routes,
	}
}

func (g *Generator) intIn(r []int) int {
	if r[1] == r[0] {
		return r[0]
	}
	return r[0] + g.rng.Intn(r[1]-r[0]+1)
}

func (g *Generator) floatIn(r []float64, decimals int) float64 {
	v := r[0] + g.rng.Float64()*(r[1]-r[0])
	pow := math.Pow10(decimals)
	return math.Round(v*pow) / pow
}

// StartBattery picks a battery level from the configured start range.
func (g *Generator) StartBattery() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intIn([]int{g.battery.StartMin, g.battery.StartMax})
}

// MissionWindow computes the time window for the next mission: the base
// time snapped to the configured grid plus a random in-grid offset (so
// the fleet does not depart simultaneously), with a duration drawn from
// the configured bounds.
func (g *Generator) MissionWindow(base time.Time) (start, end time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	grid := time.Duration(g.sim.TimeGridMinutes) * time.Minute
	snapped := base.Truncate(grid)
	offset := time.Duration(g.rng.Intn(g.sim.TimeGridMinutes)) * time.Minute
	start = snapped.Add(offset)

	durMin := g.sim.MissionDurationMin
	durMax := g.sim.MissionDurationMax
	duration := time.Duration(g.intIn([]int{durMin, durMax})) * time.Minute
	return start, start.Add(duration)
}

// Mission produces one mission skeleton for the given robot and window.
// Battery drain honors end <= start, floored at zero.
func (g *Generator) Mission(robotID string, start, end time.Time, startBattery int) CycleResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	drain := g.intIn([]int{g.battery.DrainMin, g.battery.DrainMax})
	endBattery := startBattery - drain
	if endBattery < 0 {
		endBattery = 0
	}

	return CycleResult{
		RobotID:      robotID,
		StartTime:    start,
		EndTime:      end,
		StartBattery: startBattery,
		EndBattery:   endBattery,
		RouteName:    g.routeNames[g.rng.Intn(len(g.routeNames))],
		Location:     g.location(),
	}
}

func (g *Generator) location() Location {
	sites := g.locations.Sites
	lines := g.locations.Lines
	floors := g.locations.Floors
	areas := []string{g.locations.Area}

	if !g.sim.StrictMode {
		// Free mode additionally allows the legacy layout labels seen
		// in historical data.
		sites = append(append([]string{}, sites...), "P")
		lines = append(append([]string{}, lines...), "P1L")
		floors = append(append([]string{}, floors...), "3F", "5F")
		areas = append(areas, "FSF")
	}

	return Location{
		Site:  sites[g.rng.Intn(len(sites))],
		Line:  lines[g.rng.Intn(len(lines))],
		Floor: floors[g.rng.Intn(len(floors))],
		Area:  areas[g.rng.Intn(len(areas))],
	}
}

// DataPoints produces the sensor samples for a mission window, evenly
// spaced and time-ordered within [start, end].
func (g *Generator) DataPoints(start, end time.Time) []DataPoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := g.intIn([]int{g.sim.DataPointsMin, g.sim.DataPointsMax})
	duration := end.Sub(start)

	points := make([]DataPoint, 0, count)
	for i := 0; i < count; i++ {
		var offset time.Duration
		if count > 1 {
			offset = time.Duration(float64(duration) / float64(count-1) * float64(i))
		}
		points = append(points, g.sample(start.Add(offset)))
	}
	return points
}

func (g *Generator) sample(ts time.Time) DataPoint {
	return DataPoint{
		Timestamp:         ts,
		UnixTime:          float64(ts.UnixNano()) / float64(time.Second),
		PosX:              g.intIn(g.sensors.PosX),
		PosY:              g.intIn(g.sensors.PosY),
		Theta:             g.intIn(g.sensors.Theta),
		LocalizationScore: g.floatIn(g.sensors.LocalizationScore, 2),
		TiltX:             g.floatIn(g.sensors.TiltX, 2),
		TiltY:             g.floatIn(g.sensors.TiltY, 2),
		NH3:               g.floatIn(g.sensors.NH3, 2),
		H2S:               g.floatIn(g.sensors.H2S, 2),
		VOCs:              g.floatIn(g.sensors.VOCs, 2),
		F2:                g.floatIn(g.sensors.F2, 3),
		HF:                g.floatIn(g.sensors.HF, 2),
		Temperature:       g.floatIn(g.sensors.Temperature, 1),
		Humidity:          g.floatIn(g.sensors.Humidity, 1),
		Illuminance:       g.floatIn(g.sensors.Illuminance, 2),
		Noise:             g.floatIn(g.sensors.Noise, 2),
		PillarNumber:      fmt.Sprintf("G%d D-%d", 10+g.rng.Intn(16), 1+g.rng.Intn(5)),
		BayNumber:         fmt.Sprintf("P%02d", g.rng.Intn(11)),
		ShotNumber:        fmt.Sprintf("%d", 1+g.rng.Intn(10)),
	}
}
