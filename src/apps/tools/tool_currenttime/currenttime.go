package tool_currenttime

import (
	"context"
	"fmt"
	"time"

	"github.com/elee1766/chatmux/src/agent"
)

// Tool name constant
const Name = "current_time"

const currentTimePrompt = `Returns the current date and time. Pass an IANA timezone name such as "Europe/Paris" to get local time there; UTC is used otherwise.`

// CurrentTimeInput represents the parameters for current_time
type CurrentTimeInput struct {
	Timezone string `json:"timezone,omitempty" description:"IANA timezone name, defaults to UTC"`
}

// CurrentTimeOutput represents the response from current_time
type CurrentTimeOutput struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Weekday  string `json:"weekday"`
	Unix     int64  `json:"unix"`
}

// Tool returns the current_time tool; now defaults to time.Now.
func Tool(now func() time.Time) (agent.Tool, error) {
	if now == nil {
		now = time.Now
	}
	return agent.NewGenericTool(Name, currentTimePrompt, func(ctx context.Context, input CurrentTimeInput) (CurrentTimeOutput, error) {
		loc := time.UTC
		if input.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(input.Timezone)
			if err != nil {
				return CurrentTimeOutput{}, fmt.Errorf("unknown timezone %q", input.Timezone)
			}
		}
		t := now().In(loc)
		return CurrentTimeOutput{
			Time:     t.Format(time.RFC3339),
			Timezone: loc.String(),
			Weekday:  t.Weekday().String(),
			Unix:     t.Unix(),
		}, nil
	})
}
