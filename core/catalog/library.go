package catalog

import "soundscape/model"

// DefaultLibrary is the shipped field-recording set.
func DefaultLibrary() []Entry {
	return []Entry{
		{
			ID: "rain", Name: "Rain", Kind: model.AssetLoop,
			DefaultAssetID: "rain_soft_loop_01",
			Assets: []model.Asset{
				{ID: "rain_soft_loop_01", Label: "Soft Rain", Kind: model.AssetLoop, Category: "rain"},
				{ID: "rain_medium_loop_01", Label: "Medium Rain", Kind: model.AssetLoop, Category: "rain"},
			},
		},
		{
			ID: "wind", Name: "Wind", Kind: model.AssetLoop,
			DefaultAssetID: "wind_soft_trees_loop_01",
			Assets: []model.Asset{
				{ID: "wind_soft_trees_loop_01", Label: "Soft Trees Wind", Kind: model.AssetLoop, Category: "wind"},
			},
		},
		{
			ID: "fireplace", Name: "Fireplace", Kind: model.AssetLoop,
			DefaultAssetID: "fireplace_cozy_loop_01",
			Assets: []model.Asset{
				{ID: "fireplace_cozy_loop_01", Label: "Cozy Fireplace", Kind: model.AssetLoop, Category: "fireplace"},
			},
		},
		{
			ID: "water", Name: "Water", Kind: model.AssetLoop,
			DefaultAssetID: "water_stream_with_distant_birds_01",
			Assets: []model.Asset{
				{ID: "water_stream_with_distant_birds_01", Label: "Stream + Distant Birds", Kind: model.AssetLoop, Category: "water"},
			},
		},
		{
			ID: "birds", Name: "Birds", Kind: model.AssetLoop,
			DefaultAssetID: "birds_morning_chirp_01",
			Assets: []model.Asset{
				{ID: "birds_morning_chirp_01", Label: "Morning Chirps", Kind: model.AssetLoop, Category: "birds"},
			},
		},
		{
			ID: "insects", Name: "Insects", Kind: model.AssetLoop,
			DefaultAssetID: "insects_soft_night_loop_01",
			Assets: []model.Asset{
				{ID: "insects_soft_night_loop_01", Label: "Soft Night Insects", Kind: model.AssetLoop, Category: "insects"},
			},
		},
		{
			ID: "thunder", Name: "Thunder", Kind: model.AssetEvent,
			DefaultAssetID: "thunder_distant_roll_01",
			Assets: []model.Asset{
				{ID: "thunder_distant_roll_01", Label: "Distant Roll", Kind: model.AssetEvent, Category: "thunder"},
				{ID: "thunder_close_strike_01", Label: "Close Strike", Kind: model.AssetEvent, Category: "thunder"},
			},
		},
	}
}
