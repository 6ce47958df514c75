package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Density accumulation modes.
const (
	DensityModeCumulative = "cumulative"
	DensityModeRolling    = "rolling"
)

// Chart overlay names recognised in the chart_overlays list.
const (
	ChartHistogram   = "histogram"
	ChartSpeedSeries = "speed_series"
	ChartSuddenCount = "sudden_count_series"
)

// OverlayConfig represents the root configuration for an overlay run.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
type OverlayConfig struct {
	// Rendering toggles
	ShowPositionMarkers *bool    `json:"show_position_markers,omitempty"`
	ShowDensityOverlay  *bool    `json:"show_density_overlay,omitempty"`
	DensityOpacity      *float64 `json:"density_opacity,omitempty"`
	MarkerRadiusPx      *int     `json:"marker_radius_px,omitempty"`
	ChartOverlays       []string `json:"chart_overlays,omitempty"`

	// Density estimator params
	DensityMode         *string  `json:"density_mode,omitempty"`
	DensityWindowFrames *int     `json:"density_window_frames,omitempty"`
	DensityBandwidth    *float64 `json:"density_bandwidth,omitempty"`
	DensityCellSizePx   *float64 `json:"density_cell_size_px,omitempty"`

	// Kinematics params
	KinematicsWindowFrames      *int     `json:"kinematics_window_frames,omitempty"`
	GapToleranceFrames          *int     `json:"gap_tolerance_frames,omitempty"`
	SuddenAccelerationThreshold *float64 `json:"sudden_acceleration_threshold,omitempty"`
	FramesPerSecond             *float64 `json:"frames_per_second,omitempty"`

	// Frame geometry (pixels). Overridden by the video source when one is
	// attached; required for stats-only runs.
	FrameWidthPx  *float64 `json:"frame_width_px,omitempty"`
	FrameHeightPx *float64 `json:"frame_height_px,omitempty"`

	// World calibration for exported speeds. Zero disables conversion.
	MetresPerPixel *float64 `json:"metres_per_pixel,omitempty"`

	// Render worker pool size for frame compositing.
	RenderWorkers *int `json:"render_workers,omitempty"`
}

// EmptyOverlayConfig returns an OverlayConfig with all fields set to nil.
func EmptyOverlayConfig() *OverlayConfig {
	return &OverlayConfig{}
}

// LoadOverlayConfig loads an OverlayConfig from a JSON file. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOverlayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *OverlayConfig) Validate() error {
	if c.DensityMode != nil {
		if *c.DensityMode != DensityModeCumulative && *c.DensityMode != DensityModeRolling {
			return fmt.Errorf("density_mode must be %q or %q, got %q",
				DensityModeCumulative, DensityModeRolling, *c.DensityMode)
		}
	}
	if c.DensityOpacity != nil {
		if *c.DensityOpacity < 0 || *c.DensityOpacity > 1 {
			return fmt.Errorf("density_opacity must be between 0 and 1, got %f", *c.DensityOpacity)
		}
	}
	if c.DensityWindowFrames != nil && *c.DensityWindowFrames <= 0 {
		return fmt.Errorf("density_window_frames must be positive, got %d", *c.DensityWindowFrames)
	}
	if c.DensityBandwidth != nil && *c.DensityBandwidth <= 0 {
		return fmt.Errorf("density_bandwidth must be positive, got %f", *c.DensityBandwidth)
	}
	if c.KinematicsWindowFrames != nil && *c.KinematicsWindowFrames < 3 {
		return fmt.Errorf("kinematics_window_frames must be at least 3, got %d", *c.KinematicsWindowFrames)
	}
	if c.GapToleranceFrames != nil && *c.GapToleranceFrames < 0 {
		return fmt.Errorf("gap_tolerance_frames must be non-negative, got %d", *c.GapToleranceFrames)
	}
	if c.FramesPerSecond != nil && *c.FramesPerSecond <= 0 {
		return fmt.Errorf("frames_per_second must be positive, got %f", *c.FramesPerSecond)
	}
	for _, name := range c.ChartOverlays {
		switch name {
		case ChartHistogram, ChartSpeedSeries, ChartSuddenCount:
		default:
			return fmt.Errorf("unknown chart overlay %q", name)
		}
	}
	return nil
}

// GetShowPositionMarkers returns the marker toggle or the default.
func (c *OverlayConfig) GetShowPositionMarkers() bool {
	if c.ShowPositionMarkers == nil {
		return true // default
	}
	return *c.ShowPositionMarkers
}

// GetShowDensityOverlay returns the density heatmap toggle or the default.
func (c *OverlayConfig) GetShowDensityOverlay() bool {
	if c.ShowDensityOverlay == nil {
		return true // default
	}
	return *c.ShowDensityOverlay
}

// GetDensityOpacity returns the heatmap blend opacity or the default.
func (c *OverlayConfig) GetDensityOpacity() float64 {
	if c.DensityOpacity == nil {
		return 0.45 // default
	}
	return *c.DensityOpacity
}

// GetMarkerRadiusPx returns the marker radius or the default.
func (c *OverlayConfig) GetMarkerRadiusPx() int {
	if c.MarkerRadiusPx == nil {
		return 4 // default
	}
	return *c.MarkerRadiusPx
}

// GetChartOverlays returns the enabled chart overlay names.
// Defaults to all charts enabled.
func (c *OverlayConfig) GetChartOverlays() []string {
	if c.ChartOverlays == nil {
		return []string{ChartHistogram, ChartSpeedSeries, ChartSuddenCount}
	}
	return c.ChartOverlays
}

// ChartEnabled reports whether the named chart overlay is enabled.
func (c *OverlayConfig) ChartEnabled(name string) bool {
	for _, n := range c.GetChartOverlays() {
		if n == name {
			return true
		}
	}
	return false
}

// GetDensityMode returns the accumulation mode or the default.
func (c *OverlayConfig) GetDensityMode() string {
	if c.DensityMode == nil {
		return DensityModeCumulative // default
	}
	return *c.DensityMode
}

// GetDensityWindowFrames returns the rolling window length or the default.
func (c *OverlayConfig) GetDensityWindowFrames() int {
	if c.DensityWindowFrames == nil {
		return 300 // default: 10s at 30fps
	}
	return *c.DensityWindowFrames
}

// GetDensityBandwidth returns the kernel bandwidth in pixels or the default.
func (c *OverlayConfig) GetDensityBandwidth() float64 {
	if c.DensityBandwidth == nil {
		return 12.0 // default
	}
	return *c.DensityBandwidth
}

// GetDensityCellSizePx returns the grid cell size in pixels or the default.
func (c *OverlayConfig) GetDensityCellSizePx() float64 {
	if c.DensityCellSizePx == nil {
		return 8.0 // default
	}
	return *c.DensityCellSizePx
}

// GetKinematicsWindowFrames returns the trajectory window length or the default.
func (c *OverlayConfig) GetKinematicsWindowFrames() int {
	if c.KinematicsWindowFrames == nil {
		return 30 // default
	}
	return *c.KinematicsWindowFrames
}

// GetGapToleranceFrames returns the gap tolerance or the default.
func (c *OverlayConfig) GetGapToleranceFrames() int {
	if c.GapToleranceFrames == nil {
		return 5 // default
	}
	return *c.GapToleranceFrames
}

// GetSuddenAccelerationThreshold returns the event threshold (px/s²) or the default.
func (c *OverlayConfig) GetSuddenAccelerationThreshold() float64 {
	if c.SuddenAccelerationThreshold == nil {
		return 400.0 // default
	}
	return *c.SuddenAccelerationThreshold
}

// GetFramesPerSecond returns the frame rate or the default.
func (c *OverlayConfig) GetFramesPerSecond() float64 {
	if c.FramesPerSecond == nil {
		return 30.0 // default
	}
	return *c.FramesPerSecond
}

// GetFrameWidthPx returns the frame width or the default.
func (c *OverlayConfig) GetFrameWidthPx() float64 {
	if c.FrameWidthPx == nil {
		return 1280.0 // default
	}
	return *c.FrameWidthPx
}

// GetFrameHeightPx returns the frame height or the default.
func (c *OverlayConfig) GetFrameHeightPx() float64 {
	if c.FrameHeightPx == nil {
		return 720.0 // default
	}
	return *c.FrameHeightPx
}

// GetMetresPerPixel returns the world calibration or zero when uncalibrated.
func (c *OverlayConfig) GetMetresPerPixel() float64 {
	if c.MetresPerPixel == nil {
		return 0
	}
	return *c.MetresPerPixel
}

// GetRenderWorkers returns the render pool size or the default.
func (c *OverlayConfig) GetRenderWorkers() int {
	if c.RenderWorkers == nil || *c.RenderWorkers < 1 {
		return 4 // default
	}
	return *c.RenderWorkers
}
