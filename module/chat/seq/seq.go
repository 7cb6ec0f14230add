package seq

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chatparty/tools/errs"
)

// Per-conversation sequence numbers. The allocator hands out segments of
// ids from Redis; segment refills go through the durable DAO. Every
// append in a conversation funnels through here, which is what makes two
// interleaved sends unable to collide on an order key.

// 段内原子发号：KEYS[1]=key; ARGV[1]=need; ARGV[2]=nowMs
// 返回：{0,start} 成功；{1} notfound；{3} 段用尽
var luaInSegment = redis.NewScript(`
  local k = KEYS[1]
  local need = tonumber(ARGV[1])
  local nowms = tonumber(ARGV[2])

  local curr = redis.call('HGET', k, 'curr')
  local endv = redis.call('HGET', k, 'end')
  if not curr or not endv then
    return {1}
  end
  curr = tonumber(curr); endv = tonumber(endv)

  local start = curr + 1
  local newv  = curr + need
  if newv > endv then
    return {3}
  end
  redis.call('HSET', k, 'curr', newv, 'mill', nowms)
  return {0, start}
`)

// 装载/刷新段：curr=start-1, end=end，并设置TTL
var luaSetSegment = redis.NewScript(`
  local k = KEYS[1]
  local curr = tonumber(ARGV[1])
  local endv = tonumber(ARGV[2])
  local nowms= tonumber(ARGV[3])
  redis.call('HSET', k, 'curr', curr, 'end', endv, 'mill', nowms)
  redis.call('PEXPIRE', k, 3600000)
  return 1
`)

type DAOIface interface {
	AllocSegment(ctx context.Context, conversationID string, block int64) (start, end int64, err error)
}

type Allocator struct {
	Rdb         redis.Scripter
	DAO         DAOIface
	BlockSizeFn func(conversationID string, want int64) int64
	KeyFn       func(conversationID string) string
	MaxRetry    int
}

func defaultBlock(_ string, want int64) int64 {
	if want <= 0 {
		want = 1
	}
	if want < 32 {
		return 256 // cold conversation, small segment
	}
	return want * 8
}

func defaultKey(conv string) string { return "seq:blk:" + conv }

func (a *Allocator) ensure() {
	if a.BlockSizeFn == nil {
		a.BlockSizeFn = defaultBlock
	}
	if a.KeyFn == nil {
		a.KeyFn = defaultKey
	}
	if a.MaxRetry == 0 {
		a.MaxRetry = 10
	}
}

// Next allocates one sequence number for the conversation.
func (a *Allocator) Next(ctx context.Context, conversationID string) (int64, error) {
	return a.Malloc(ctx, conversationID, 1)
}

// Malloc allocates need consecutive seq values and returns the first.
func (a *Allocator) Malloc(ctx context.Context, conversationID string, need int64) (int64, error) {
	a.ensure()
	if need <= 0 {
		need = 1
	}
	key := a.KeyFn(conversationID)

	for i := 0; i < a.MaxRetry; i++ {
		nowms := time.Now().UnixMilli()

		res, err := luaInSegment.Run(ctx, a.Rdb, []string{key}, need, nowms).Result()
		if err != nil {
			return 0, errs.WrapMsg(err, "seq in-segment alloc", "conversation_id", conversationID)
		}
		arr, ok := res.([]interface{})
		if !ok || len(arr) == 0 {
			return 0, errs.New("seq script returned unexpected shape", "conversation_id", conversationID)
		}
		switch arr[0].(int64) {
		case 0:
			return arr[1].(int64), nil
		case 1, 3:
			// no segment in redis, or segment exhausted: refill from the DAO
			block := a.BlockSizeFn(conversationID, need)
			start, end, derr := a.DAO.AllocSegment(ctx, conversationID, block)
			if derr != nil {
				return 0, derr
			}
			if _, serr := luaSetSegment.Run(ctx, a.Rdb, []string{key}, start-1, end, nowms).Result(); serr != nil {
				return 0, errs.WrapMsg(serr, "seq set-segment", "conversation_id", conversationID)
			}
			// loop and take from the fresh segment; a concurrent refill
			// just means we grab from whichever segment won
		}
	}
	return 0, errs.New("seq allocation retries exhausted", "conversation_id", conversationID)
}
