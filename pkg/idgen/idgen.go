package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// ID and code generation
// ============================================================================
//
// Ledger numbers and outbox keys come from a snowflake node: unique per
// worker, roughly time ordered, cheap to index.
//
// Human-facing codes (redemption, streak, referral) use crypto/rand over an
// unambiguous upper-case alphabet so they can be read out at a kiosk.
//
// ============================================================================

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	node     *snowflake.Node
	nodeOnce sync.Once
	nodeErr  error
)

// Init sets the worker id of this process. Must be called before the first
// NextID when running more than one replica; otherwise worker 1 is used.
func Init(workerID int64) error {
	nodeOnce.Do(func() {
		node, nodeErr = snowflake.NewNode(workerID)
	})
	return nodeErr
}

// NextID returns the next snowflake id.
func NextID() int64 {
	if err := Init(1); err != nil {
		panic(fmt.Sprintf("idgen: %v", err))
	}
	return node.Generate().Int64()
}

// GenerateTransactionNo formats TXN + yyyymmddhhmmss + last 8 digits of a snowflake id.
func GenerateTransactionNo() string {
	return prefixed("TXN")
}

// GenerateMessageKey identifies an outbox message.
func GenerateMessageKey() string {
	return prefixed("MSG")
}

// GenerateBatchID labels one CSV import.
func GenerateBatchID() string {
	return strconv.FormatInt(NextID(), 36)
}

func prefixed(p string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%08d", p, time.Now().Format("20060102150405"), id%100000000)
}

// RedemptionCode returns PREFIX-<base36 millis>-<4 random>, e.g. HIVIS-LZ3K9Q1A-7QX2.
// The time part keeps codes from different moments apart, the random part
// separates codes minted in the same millisecond.
func RedemptionCode(prefix string) string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	return fmt.Sprintf("%s-%s-%s", prefix, ts, RandomCode(4))
}

// StreakCode returns PREFIX-XXXXXX.
func StreakCode(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, RandomCode(6))
}

// ReferralCode returns a 6 character code.
func ReferralCode() string {
	return RandomCode(6)
}

// RandomCode returns n characters from the code alphabet.
func RandomCode(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("idgen: crypto/rand: %v", err))
		}
		b.WriteByte(codeAlphabet[v.Int64()])
	}
	return b.String()
}
