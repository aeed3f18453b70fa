package models

// ClusterResult is the read-only view of one finished cluster.
type ClusterResult struct {
	Title string  `json:"title"`
	Items []*Item `json:"items"`
}

// ClusterResponse is the response for a clustering request.
type ClusterResponse struct {
	RunID         string           `json:"run_id"`
	Threshold     float64          `json:"threshold"`
	Clusters      []*ClusterResult `json:"clusters"`
	TotalItems    int              `json:"total_items"`
	TotalClusters int              `json:"total_clusters"`
	ElapsedMS     int64            `json:"elapsed_ms"`
	// Errors holds per-feed fetch failures ("<url>: <reason>") when items came from live feeds.
	Errors []string `json:"errors,omitempty"`
}
