package personality

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

// DeriveID turns a display name into a kebab-case id. Names without any
// usable character get a random UUID.
func DeriveID(name string) string {
	slug := strcase.ToKebab(strings.TrimSpace(name))

	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	ret := strings.TrimRight(b.String(), "-")
	if ret == "" {
		return uuid.NewString()
	}
	return ret
}

// uniqueID returns DeriveID(name), suffixed with a counter while taken reports
// it as used.
func uniqueID(name string, taken func(id string) bool) string {
	base := DeriveID(name)
	id := base
	for i := 2; taken(id); i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	return id
}
