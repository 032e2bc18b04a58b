package apphttp

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/keithlinneman/httppipe/internal/health"
	"github.com/keithlinneman/httppipe/internal/httpmw"
	"github.com/keithlinneman/httppipe/internal/pipeline"
	"github.com/keithlinneman/httppipe/internal/xerrors"
)

const (
	greetingText = "Hello! Visit /weatherforecast, /secure/data, or /throw to test middleware."
	terminalBody = "This is a terminal middleware – pipeline stops here."
	throwMessage = "This is a test exception to demonstrate error-handling middleware."
)

var summaries = [...]string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

type Forecast struct {
	Date         string `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	TemperatureF int    `json:"temperatureF"`
	Summary      string `json:"summary"`
}

func fahrenheit(c int) int {
	return 32 + int(float64(c)/0.5556)
}

type SecureData struct {
	Message       string    `json:"message"`
	CorrelationID *string   `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func greeting(c *pipeline.Context) error {
	return c.Response.WriteString(http.StatusOK, greetingText)
}

// forecastHandler returns five days of random weather starting tomorrow.
// r is shared across requests, so draws are serialized.
func forecastHandler(r *rand.Rand, now func() time.Time) pipeline.Handler {
	src := &lockedRand{r: r}
	return func(c *pipeline.Context) error {
		today := now()
		out := make([]Forecast, 5)
		for i := range out {
			tc, s := src.draw()
			out[i] = Forecast{
				Date:         today.AddDate(0, 0, i+1).Format(time.DateOnly),
				TemperatureC: tc,
				TemperatureF: fahrenheit(tc),
				Summary:      summaries[s],
			}
		}
		return c.Response.JSON(http.StatusOK, out)
	}
}

func secureData(now func() time.Time) pipeline.Handler {
	return func(c *pipeline.Context) error {
		body := SecureData{
			Message:   "You have access to secure data!",
			Timestamp: now().UTC(),
		}
		if id := httpmw.CorrelationIDFrom(c); id != "" {
			body.CorrelationID = &id
		}
		return c.Response.JSON(http.StatusOK, body)
	}
}

func throw(*pipeline.Context) error {
	return xerrors.New(throwMessage)
}

// healthTerminal answers the /health branch. It never reaches the router.
func healthTerminal(p health.Probe, now func() time.Time) pipeline.Handler {
	return func(c *pipeline.Context) error {
		httpmw.SetRoute(c, "/health")
		c.Response.Header().Set("Cache-Control", "no-store")

		if p != nil {
			if err := p.Check(c.Context()); err != nil {
				return c.Response.JSON(http.StatusServiceUnavailable, HealthStatus{
					Status:    "unhealthy",
					Reason:    err.Error(),
					Timestamp: now().UTC(),
				})
			}
		}
		return c.Response.JSON(http.StatusOK, HealthStatus{Status: "healthy", Timestamp: now().UTC()})
	}
}

func terminalText(c *pipeline.Context) error {
	httpmw.SetRoute(c, "/terminal")
	return c.Response.WriteString(http.StatusOK, terminalBody)
}
