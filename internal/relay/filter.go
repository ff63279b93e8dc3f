package relay

// ChannelFilter gates messages on source channel identity.
// An empty allow-list admits every channel.
type ChannelFilter struct {
	allowed map[string]struct{}
}

// NewChannelFilter creates a ChannelFilter from the given allow-list.
// Blank entries are ignored.
func NewChannelFilter(channelIDs []string) *ChannelFilter {
	allowed := make(map[string]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &ChannelFilter{allowed: allowed}
}

// Allowed reports whether messages from the given channel may be relayed.
func (f *ChannelFilter) Allowed(channelID string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[channelID]
	return ok
}
