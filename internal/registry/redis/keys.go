package redis

const (
	// keyPrefixItem is the prefix for processing item keys.
	keyPrefixItem = "perch:processing:item:"
	// keyPrefixUser is the prefix for the per-user set of item ids.
	keyPrefixUser = "perch:processing:user:"
	// keyPrefixCancel is the prefix for cancellation flag keys.
	keyPrefixCancel = "perch:processing:cancel:"
)

// itemKey returns the Redis key for a processing item.
func itemKey(id string) string {
	return keyPrefixItem + id
}

// userKey returns the Redis key for a user's set of item ids.
func userKey(userID string) string {
	return keyPrefixUser + userID
}

// cancelKey returns the Redis key for a run's cancellation flag.
func cancelKey(id string) string {
	return keyPrefixCancel + id
}
