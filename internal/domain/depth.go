package domain

// DepthState is the public view of the pond's continuity counters.
type DepthState struct {
	TotalInteractions int    `json:"total_interactions"`
	TotalVowsStored   int    `json:"total_vows_stored"`
	LastActiveDate    string `json:"last_active_date,omitempty"`
	ContinuousDays    int    `json:"continuous_days"`
	FirstBreath       string `json:"first_breath"`
	LastBreath        string `json:"last_breath,omitempty"`
}

// NodeVersion tags every depth packet.
const NodeVersion = "pond-lotus-v7"

// DepthPacket is the signed metrics payload sent to the depth aggregator.
// ReflectionCount carries the pond-wide interaction count.
type DepthPacket struct {
	PondID          string   `json:"pond_id"`
	VowHashes       []string `json:"vow_hashes"`
	VowCount        int      `json:"vow_count"`
	ReflectionCount int      `json:"reflection_count"`
	ContinuousDays  int      `json:"continuous_days"`
	FirstBreath     string   `json:"first_breath"`
	LastBreath      string   `json:"last_breath"`
	PublicKey       string   `json:"public_key"`
	NodeVersion     string   `json:"node_version"`
	Signature       string   `json:"signature"`
}
