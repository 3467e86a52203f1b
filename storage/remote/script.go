package remote

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/hophndev/fastex-go"
)

// Script is the pluggable counter-increment procedure a Backend runs
// atomically against the shared store (spec.md §4.B). Implementations
// are values, not types registered through inheritance: swapping the
// default script for a custom one is a matter of passing a different
// Script to New.
type Script interface {
	// Keys returns the store keys the script touches for counterKey.
	// The default script touches exactly one.
	Keys(counterKey string) []string

	// Argv returns the script's positional arguments given the
	// policy's times/window_ms.
	Argv(times, windowMS int64) []interface{}

	// Run executes the script against rdb and returns its raw
	// two-element result [retry_after_ms, current_count].
	Run(ctx context.Context, rdb redis.Scripter, keys []string, argv []interface{}) ([]int64, error)

	// Parse converts the script's raw result into a Decision, or a
	// *fastex.ScriptError if the result is structurally invalid.
	Parse(raw []int64) (fastex.Decision, error)
}

// fixedWindowLua implements the exact atomic procedure required by
// spec.md §4.B: an unconditional INCR, a PEXPIRE set only on the first
// hit in a window (with a race-repair branch when PTTL reports no
// expiry), and a rejection derived from the post-increment count.
const fixedWindowLua = `
local current = redis.call('INCR', KEYS[1])
local ttl
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
else
    ttl = redis.call('PTTL', KEYS[1])
    if ttl < 0 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
        ttl = tonumber(ARGV[1])
    end
end
if current > tonumber(ARGV[2]) then
    return {ttl, current}
else
    return {0, current}
end
`

// DefaultScript is the fixed-window Script every Backend uses unless a
// caller supplies a custom one via WithScript.
var DefaultScript Script = &defaultScript{script: redis.NewScript(fixedWindowLua)}

type defaultScript struct {
	script *redis.Script
}

func (d *defaultScript) Keys(counterKey string) []string {
	return []string{counterKey}
}

// Argv order matches ARGV[1]=window_ms, ARGV[2]=times in fixedWindowLua.
func (d *defaultScript) Argv(times, windowMS int64) []interface{} {
	return []interface{}{windowMS, times}
}

func (d *defaultScript) Run(ctx context.Context, rdb redis.Scripter, keys []string, argv []interface{}) ([]int64, error) {
	return d.script.Run(ctx, rdb, keys, argv...).Int64Slice()
}

func (d *defaultScript) Parse(raw []int64) (fastex.Decision, error) {
	if len(raw) != 2 {
		return fastex.Decision{}, &fastex.ScriptError{Reason: "expected two-element result", Raw: raw}
	}
	return fastex.Decision{RetryAfterMS: raw[0], CurrentCount: raw[1]}, nil
}
