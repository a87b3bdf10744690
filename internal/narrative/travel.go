package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loremaster-ai/loremaster/pkg/campaign"
)

// Time advanced per turn when no longer activity applies.
const (
	DefaultAdvance   = 5 * time.Minute
	ExploreAdvance   = 20 * time.Minute
	ShortRestAdvance = time.Hour
	LongRestAdvance  = 8 * time.Hour
)

// travelSpeeds maps travel mode to miles per hour.
var travelSpeeds = map[string]float64{
	"walk":  3,
	"hike":  2,
	"run":   6,
	"horse": 8,
	"wagon": 4,
	"boat":  5,
	"ship":  10,
	"swim":  1,
}

// TravelDuration converts a distance and travel mode into game time.
// Unknown modes fall back to walking speed.
func TravelDuration(distanceMiles float64, mode string) time.Duration {
	speed, ok := travelSpeeds[strings.ToLower(mode)]
	if !ok {
		speed = travelSpeeds["walk"]
	}
	if distanceMiles <= 0 {
		return 0
	}
	hours := distanceMiles / speed
	return time.Duration(float64(time.Hour) * hours)
}

// ResolveDestination matches a prose destination name against the
// connections of the current location, comparing lowercased location
// names. Returns the matched connection and the destination location.
func ResolveDestination(ctx context.Context, store campaign.Store, currentLocationID, destination string) (campaign.Connection, *campaign.Location, error) {
	if store == nil || currentLocationID == "" || destination == "" {
		return campaign.Connection{}, nil, fmt.Errorf("narrative: destination %q not resolvable", destination)
	}
	loc, err := store.Location(ctx, currentLocationID)
	if err != nil {
		return campaign.Connection{}, nil, fmt.Errorf("narrative: resolve destination: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(destination))
	for _, conn := range loc.Connections {
		target, err := store.Location(ctx, conn.LocationID)
		if err != nil {
			continue
		}
		name := strings.ToLower(target.Name)
		if name == want || strings.Contains(name, want) || strings.Contains(want, name) {
			return conn, &target, nil
		}
	}
	return campaign.Connection{}, nil, fmt.Errorf("narrative: no connection from %s matches %q", currentLocationID, destination)
}
