package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelEntityGUID returns the stable GUID of an entity within a channel: the zero padded
// hex channel id followed by the zero padded hex entity id.
func ChannelEntityGUID(channelID, entityID int) uuid.UUID {
	hex := fmt.Sprintf("%016x%016x", uint64(channelID), uint64(entityID))
	id, err := uuid.Parse(hex)
	if err != nil {
		// unreachable for 32 hex digits
		return uuid.Nil
	}
	return id
}

// SkuGUID returns the stable GUID of a SKU. SKU ids are free text so the GUID is a name
// based hash scoped by the channel entity GUID.
func SkuGUID(channelID int, skuCode string) uuid.UUID {
	return uuid.NewSHA1(ChannelEntityGUID(channelID, 0), []byte(skuCode))
}
