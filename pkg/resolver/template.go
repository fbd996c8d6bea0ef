package resolver

import "fmt"

// Upstream playlist URL templates. The default pool hosts channels under a
// cdn path; assigned pools host them under the pool's own name.
const (
	defaultPoolURL  = "https://top1.newkso.ru/top1/cdn/%s/mono.m3u8"
	assignedPoolURL = "https://%snew.newkso.ru/%s/%s/mono.m3u8"
	defaultPoolKey  = "top1"
)

// PlaylistURL builds the upstream playlist location for a resolved channel.
func PlaylistURL(serverKey, channelKey string) string {
	if serverKey == "" || serverKey == defaultPoolKey {
		return fmt.Sprintf(defaultPoolURL, channelKey)
	}
	return fmt.Sprintf(assignedPoolURL, serverKey, serverKey, channelKey)
}
