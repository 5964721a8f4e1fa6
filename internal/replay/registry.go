package replay

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/dispatch"
)

// BuildFunc renders the wire payload for one accepted record.
type BuildFunc func(rec core.RawRecord, vr core.ValidationResult, cfg core.RunConfiguration, now time.Time) (core.BuildResult, error)

// TransportFunc creates the transport for a run.
type TransportFunc func(cfg core.RunConfiguration) dispatch.Transport

// ChannelDefinition is everything needed to replay records to one channel.
// Channels share validation and accounting; they differ only in payload
// shape and delivery mode.
type ChannelDefinition struct {
	Channel      core.Channel
	Label        string
	Mode         core.DeliveryMode
	Build        BuildFunc
	NewTransport TransportFunc
}

var (
	registry   = make(map[core.Channel]ChannelDefinition)
	registryMu sync.RWMutex
)

// Register adds a channel definition to the registry.
// Panics if a channel with the same name is already registered.
func Register(def ChannelDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Channel]; exists {
		panic(fmt.Sprintf("channel already registered: %s", def.Channel))
	}
	if def.Build == nil || def.NewTransport == nil {
		panic(fmt.Sprintf("channel %s: Build and NewTransport are required", def.Channel))
	}

	registry[def.Channel] = def
}

// Get returns a channel definition by name.
// Returns false if not found.
func Get(ch core.Channel) (ChannelDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[ch]
	return def, ok
}

// All returns all registered channel definitions sorted by name.
func All() []ChannelDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ChannelDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Channel < result[j].Channel
	})

	return result
}

func init() {
	Register(ChannelDefinition{
		Channel: core.ChannelWebhook,
		Label:   "Webhook",
		Mode:    core.ModeSingle,
		Build:   core.BuildFlat,
		NewTransport: func(cfg core.RunConfiguration) dispatch.Transport {
			return dispatch.NewWebhookTransport(cfg.EndpointURL, cfg.Timeout)
		},
	})

	Register(ChannelDefinition{
		Channel: core.ChannelCAPI,
		Label:   "LinkedIn Conversions API",
		Mode:    core.ModeBatched,
		Build:   core.BuildNested,
		NewTransport: func(cfg core.RunConfiguration) dispatch.Transport {
			return dispatch.NewCAPITransport(cfg.EndpointURL, cfg.AccessToken, cfg.APIVersion, cfg.Timeout)
		},
	})
}
