package providers

import (
	"context"
	"fmt"
	"strings"

	"streamgate/pkg/logging"
	"streamgate/pkg/resolver"
)

// TV serves channel-keyed live streams. A numeric channel id goes through
// the server/key resolver to locate the assigned upstream pool; raw URLs
// pass through with the provider's headers attached.
type TV struct {
	resolver *resolver.Resolver
	referer  string
	log      *logging.Logger
}

// NewTV creates the tv provider. referer is the player-site origin the
// upstream checks on playlist and segment fetches.
func NewTV(r *resolver.Resolver, referer string, log *logging.Logger) *TV {
	return &TV{
		resolver: r,
		referer:  strings.TrimSuffix(referer, "/") + "/",
		log:      log.WithProvider("tv"),
	}
}

func (t *TV) Name() string { return "tv" }

func (t *TV) Resolve(ctx context.Context, channel, rawURL string) (*Resolution, error) {
	headers := map[string]string{
		"Referer": t.referer,
		"Origin":  strings.TrimSuffix(t.referer, "/"),
	}

	if rawURL != "" {
		return &Resolution{PlaylistURL: rawURL, Headers: headers}, nil
	}
	if channel == "" {
		return nil, ErrMissingParams
	}

	channelKey := channel
	if !strings.HasPrefix(channelKey, "premium") {
		channelKey = "premium" + channelKey
	}

	assigned, err := t.resolver.Resolve(ctx, channelKey)
	if err != nil {
		return nil, fmt.Errorf("resolving channel %q: %w", channel, err)
	}

	t.log.Debug("channel resolved",
		"channel", channel,
		"server", assigned.Key)

	return &Resolution{
		PlaylistURL: resolver.PlaylistURL(assigned.Key, channelKey),
		Headers:     headers,
		ChannelRef:  channel,
	}, nil
}

// Invalidate drops the cached server assignment for a channel.
func (t *TV) Invalidate(channel string) {
	channelKey := channel
	if !strings.HasPrefix(channelKey, "premium") {
		channelKey = "premium" + channelKey
	}
	t.resolver.Invalidate(channelKey)
}
