package sync

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// targetingLookups are the targeting values report jobs are segmented by.
type targetingLookups struct {
	countryIDs  []string
	platformIDs []string
}

// lookupTargeting resolves the configured country codes to location targeting
// values and lists every platform targeting value.
func lookupTargeting(ctx context.Context, client AdsClient, logger *zap.Logger, countryCodes []string) (targetingLookups, error) {
	var out targetingLookups

	for _, code := range countryCodes {
		params := url.Values{
			"count":         {strconv.Itoa(lookupPageSize)},
			"country_code":  {code},
			"location_type": {"COUNTRIES"},
		}
		for location, err := range client.Fetch(ctx, "targeting_criteria/locations", params) {
			if err != nil {
				return out, fmt.Errorf("looking up country %s: %w", code, err)
			}
			if id := asString(location["targeting_value"]); id != "" {
				out.countryIDs = append(out.countryIDs, id)
			}
		}
	}

	params := url.Values{"count": {strconv.Itoa(lookupPageSize)}}
	for platform, err := range client.Fetch(ctx, "targeting_criteria/platforms", params) {
		if err != nil {
			return out, fmt.Errorf("looking up platforms: %w", err)
		}
		if id := asString(platform["targeting_value"]); id != "" {
			out.platformIDs = append(out.platformIDs, id)
		}
	}

	logger.Debug("resolved targeting values",
		zap.Strings("country_ids", out.countryIDs),
		zap.Strings("platform_ids", out.platformIDs))
	return out, nil
}
