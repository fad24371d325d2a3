package util

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}
