package sharing

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRefreshToken mints the opaque token carried on endStreamAction lines.
// Tokens encode the table coordinates and issue time but carry no
// signature and are not verified when presented.
func NewRefreshToken(share, schema, table string) string {
	payload := fmt.Sprintf("%s/%s/%s/%d/%s",
		share, schema, table, time.Now().UnixMilli(), uuid.NewString())
	return base64.URLEncoding.EncodeToString([]byte(payload))
}
