package server

import "cortexmap/internal/models"

type rowPayload struct {
	Plane float64 `json:"plane"`
	D1    float64 `json:"d1"`
	D2    float64 `json:"d2"`
	D3    float64 `json:"d3"`
	Label string  `json:"label"`
}

type mapPayload struct {
	Rows          []rowPayload                  `json:"rows" binding:"required"`
	Format        string                        `json:"format"`
	Time          int                           `json:"time"`
	SliceDepth    *float64                      `json:"sliceDepth"`
	Interpolation *models.InterpolationSettings `json:"interpolation"`
}

type seriesPayload struct {
	Requests []mapPayload `json:"requests" binding:"required"`
}

type seriesResponse struct {
	Results  []*models.MappingResult `json:"results"`
	Combined [][]string              `json:"combined"`
}

type regionSummary struct {
	Name     string  `json:"name"`
	Area     float64 `json:"area"`
	Vertices int     `json:"vertices"`
}

type atlasResponse struct {
	Name               string                    `json:"name"`
	Width              float64                   `json:"width"`
	Height             float64                   `json:"height"`
	TotalArea          float64                   `json:"totalArea"`
	Calibration        models.Calibration        `json:"calibration"`
	Regions            []regionSummary           `json:"regions"`
	CalibrationEntries []models.CalibrationEntry `json:"calibrationEntries"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
