package dto

// NearbyCentersQuery bounds the nearby-center search.
type NearbyCentersQuery struct {
	RadiusKm float64 `form:"radius_km" validate:"omitempty,gt=0,lte=1000"`
}
