package imagepulse

import (
	"context"
	"time"
)

// ImageMetrics is the per-image aggregate in the shape the monitoring
// system consumes.
type ImageMetrics struct {
	Total    int64     `json:"total"`
	Success  int64     `json:"success"`
	Failure  int64     `json:"failure"`
	LastSeen time.Time `json:"lastSeen"`
}

// MetricPayload maps image reference to its aggregate metrics.
type MetricPayload map[string]ImageMetrics

// DiscoveryItem is one entry of a Zabbix low-level-discovery payload.
// The odd key is the Zabbix LLD macro name.
type DiscoveryItem struct {
	Image string `json:"{#IMAGE}"`
}

// DiscoveryPayload is the Zabbix LLD envelope.
type DiscoveryPayload struct {
	Data []DiscoveryItem `json:"data"`
}

// Reporter shapes store state into the external metric format. It is a
// pure read transform with no side effects.
type Reporter struct {
	store *Store
}

// NewReporter creates a Reporter backed by the given store.
func NewReporter(store *Store) *Reporter {
	return &Reporter{store: store}
}

// Report returns the metric payload for one image, or for every tracked
// image when the filter is empty. Deterministic for identical store
// state.
func (r *Reporter) Report(ctx context.Context, image string) (MetricPayload, error) {
	counters, err := r.store.QueryCounters(ctx, image)
	if err != nil {
		return nil, err
	}

	payload := make(MetricPayload, len(counters))
	for _, c := range counters {
		payload[c.Image] = ImageMetrics{
			Total:    c.Total,
			Success:  c.Success,
			Failure:  c.Failure,
			LastSeen: c.LastSeen,
		}
	}
	return payload, nil
}

// Discovery returns the Zabbix low-level-discovery payload listing
// every tracked image, so the monitoring side can template items per
// image.
func (r *Reporter) Discovery(ctx context.Context) (DiscoveryPayload, error) {
	counters, err := r.store.QueryCounters(ctx, "")
	if err != nil {
		return DiscoveryPayload{}, err
	}

	payload := DiscoveryPayload{Data: make([]DiscoveryItem, 0, len(counters))}
	for _, c := range counters {
		payload.Data = append(payload.Data, DiscoveryItem{Image: c.Image})
	}
	return payload, nil
}
