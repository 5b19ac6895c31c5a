package postinglist

import "github.com/hupe1980/postings/internal/pager"

const initialCursorDepth = 8

// cursorState is one frame of the root-to-leaf path.
type cursorState struct {
	page               pager.Page
	lastSearchPosition int
	lastMatch          bool
}

// cursor is the root-to-leaf stack. Frame 0 is the root.
type cursor struct {
	frames []cursorState
	pos    int
}

func newCursor() cursor {
	return cursor{frames: make([]cursorState, initialCursorDepth)}
}

func (c *cursor) grow() {
	frames := make([]cursorState, len(c.frames)*2)
	copy(frames, c.frames)
	c.frames = frames
}

func (c *cursor) push(p pager.Page, pos int, match bool) {
	if c.pos == len(c.frames) {
		c.grow()
	}
	c.frames[c.pos] = cursorState{page: p, lastSearchPosition: pos, lastMatch: match}
	c.pos++
}

func (c *cursor) pop() {
	if c.pos == 0 {
		return
	}
	c.pos--
	c.frames[c.pos] = cursorState{}
}

func (c *cursor) top() *cursorState {
	if c.pos == 0 {
		return nil
	}
	return &c.frames[c.pos-1]
}

func (c *cursor) at(level int) *cursorState { return &c.frames[level] }

func (c *cursor) depth() int { return c.pos }

func (c *cursor) reset() {
	clear(c.frames[:c.pos])
	c.pos = 0
}

// insertAt shifts frames at and above level up by one and stores s at level.
func (c *cursor) insertAt(level int, s cursorState) {
	if c.pos == len(c.frames) {
		c.grow()
	}
	copy(c.frames[level+1:c.pos+1], c.frames[level:c.pos])
	c.frames[level] = s
	c.pos++
}
