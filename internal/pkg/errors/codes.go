package errors

import "net/http"

var (
	ErrNetworkNotFound = New(
		"NETWORK_NOT_FOUND",
		"Network not found or failed to load.",
		http.StatusNotFound,
	)

	ErrNetworksUnavailable = New(
		"NETWORKS_UNAVAILABLE",
		"Failed to load bike networks.",
		http.StatusBadGateway,
	)

	ErrInvalidNetworkID = New(
		"INVALID_NETWORK_ID",
		"Invalid network ID provided.",
		http.StatusBadRequest,
	)

	ErrSessionNotFound = New(
		"SESSION_NOT_FOUND",
		"View session not found or expired",
		http.StatusNotFound,
	)

	ErrStationNotFound = New(
		"STATION_NOT_FOUND",
		"Station not found in the active network",
		http.StatusNotFound,
	)

	ErrFeatureNotFound = New(
		"FEATURE_NOT_FOUND",
		"Map feature not found on the requested layer",
		http.StatusNotFound,
	)

	ErrInvalidCoordinates = New(
		"INVALID_COORDINATES",
		"Invalid coordinates provided",
		http.StatusBadRequest,
	)

	ErrInvalidRequest = New(
		"INVALID_REQUEST",
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
