package chatclient

import (
	"sort"
	"strconv"
)

// permissionBits maps the document's permission names to the platform's
// bitfield. Names outside this map are ignored when encoding.
var permissionBits = map[string]uint64{
	"CreateInstantInvite":   1 << 0,
	"KickMembers":           1 << 1,
	"BanMembers":            1 << 2,
	"Administrator":         1 << 3,
	"ManageChannels":        1 << 4,
	"ManageGuild":           1 << 5,
	"AddReactions":          1 << 6,
	"ViewChannel":           1 << 10,
	"SendMessages":          1 << 11,
	"ManageMessages":        1 << 13,
	"EmbedLinks":            1 << 14,
	"AttachFiles":           1 << 15,
	"ReadMessageHistory":    1 << 16,
	"MentionEveryone":       1 << 17,
	"UseExternalEmojis":     1 << 18,
	"ManageRoles":           1 << 28,
	"ManageThreads":         1 << 34,
	"SendMessagesInThreads": 1 << 38,
}

const administratorBit = uint64(1 << 3)

// encodePermissions folds permission names into the platform's decimal
// bitfield string.
func encodePermissions(names []string) string {
	var bits uint64
	for _, name := range names {
		bits |= permissionBits[name]
	}
	return strconv.FormatUint(bits, 10)
}

// decodePermissions expands a decimal bitfield string back into known
// permission names.
func decodePermissions(field string) []string {
	bits, err := strconv.ParseUint(field, 10, 64)
	if err != nil || bits == 0 {
		return nil
	}
	var names []string
	for name, bit := range permissionBits {
		if bits&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func hasAdministratorBit(field string) bool {
	bits, err := strconv.ParseUint(field, 10, 64)
	return err == nil && bits&administratorBit != 0
}
