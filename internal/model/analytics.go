package model

import "time"

type AnalyticsBucket struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

type AnalyticsReport struct {
	Metric  string            `json:"metric"`
	GroupBy string            `json:"group_by"`
	From    time.Time         `json:"from"`
	To      time.Time         `json:"to"`
	StaffID string            `json:"staff_id,omitempty"`
	Total   float64           `json:"total"`
	Buckets []AnalyticsBucket `json:"buckets"`
}
