// Package web holds the data model of a bench report and the static page
// that renders it.
package web

import "time"

type ReportData struct {
	ID          string        `json:"id"`
	View        string        `json:"view"`
	Surface     string        `json:"surface"`
	TargetLevel int           `json:"targetLevel"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Complete    bool          `json:"complete"`

	Frames []FrameData `json:"frames"`
	Levels []LevelData `json:"levels"`
	Caches []CacheData `json:"caches"`

	// Stats and Loader carry the engine and loader counters as they were
	// after the last frame.
	Stats  any `json:"stats"`
	Loader any `json:"loader"`
}

type FrameData struct {
	Frame     int `json:"frame"`
	Processed int `json:"processed"`
	Visible   int `json:"visible"`
	Ready     int `json:"ready"`
	Fallback  int `json:"fallback"`
	Missing   int `json:"missing"`
	Empty     int `json:"empty"`
	DrawCalls int `json:"drawCalls"`
	Pruned    int `json:"pruned"`
	GPUUsed   int `json:"gpuUsed"`

	GeodataReady int    `json:"geodataReady"`
	GPUFluxIn    [2]int `json:"gpuFluxIn"`
	GPUFluxOut   [2]int `json:"gpuFluxOut"`
}

type LevelData struct {
	Level int    `json:"level"`
	Color string `json:"color"`
	Tiles int    `json:"tiles"`
}

type CacheData struct {
	Name      string `json:"name"`
	Used      int    `json:"used"`
	Capacity  int    `json:"capacity"`
	Items     int    `json:"items"`
	Evictions int    `json:"evictions"`
}
