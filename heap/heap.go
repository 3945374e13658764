// Package heap implements the engine's tracing garbage collector over a
// block-and-line (Immix-style) allocator with a large-object overflow
// space: blocks of 32 KiB divided into 256-byte lines, a static
// size-class table, a mark/sweep collection cycle with optional
// parallel marking and evacuation, a shadow stack of precise roots, and
// weak-reference slots.
//
// Adaptation note (see DESIGN.md): Go gives no safe way to carve raw,
// relocatable memory for arbitrary pointer-bearing structs outside its
// own GC's view, so cell "addresses" here are a stable handle (a
// monotonically issued, 16-byte-aligned uintptr) rather than a literal
// memory address; the handle indexes a registry entry holding the real
// Go pointer. This lets evacuation relocate a cell's logical block/line
// placement for compaction bookkeeping while every Value referencing the
// cell - which only ever encodes the handle - keeps resolving correctly
// without a forwarding-pointer rewrite, and it lets sweep reclaim memory
// precisely by dropping the registry's Go reference (the only live one,
// since boxed Values never hold a real Go pointer).
package heap

import (
	"sync"
	"time"

	"github.com/Starlight-JS/starlight-sub002/class"
	"github.com/Starlight-JS/starlight-sub002/internal/engerr"
	"github.com/Starlight-JS/starlight-sub002/internal/heap/sizeclass"
	"github.com/Starlight-JS/starlight-sub002/internal/heap/worklist"
	"github.com/Starlight-JS/starlight-sub002/internal/obs"
	"github.com/Starlight-JS/starlight-sub002/object"
	"github.com/Starlight-JS/starlight-sub002/value"
)

const (
	BlockSize     = 32 * 1024
	LineSize      = 256
	LinesPerBlock = BlockSize / LineSize
	LargeCutoff   = 8 * 1024 // a quarter of BlockSize

	defaultInitialThreshold = 100 * 1024
	defaultGrowthFactor     = 1.5
	defaultEvacHoleRatio    = 0.25
)

// Options configures a Heap, mirroring the engine's host-facing runtime
// options relevant to allocation and collection.
type Options struct {
	HeapSizeBytes       uint64 // 0 = unbounded (no emergency OOM ceiling)
	GCThreads           int
	ParallelMarking     bool
	ConservativeMarking bool
	VerboseGC           bool
	EvacuationHoleRatio float64 // 0 selects defaultEvacHoleRatio
}

// cellEntry is the registry record backing one live handle.
type cellEntry struct {
	cell      class.Cell
	size      uint32
	isLarge   bool
	blockID   int
	lineStart int
	lineCount int
}

type block struct {
	id       int
	cursor   int // next free line index for bump allocation
	occupied map[int]bool
}

func newBlock(id int) *block { return &block{id: id, occupied: map[int]bool{}} }

// WeakState is the lifecycle state of a WeakSlot.
type WeakState byte

const (
	WeakUnmarked WeakState = iota
	WeakMark
	WeakFree
)

// WeakSlot is the collector-owned indirection a weak reference points
// through, per the design notes ("weak references as slots, not direct
// pointers").
type WeakSlot struct {
	target uintptr
	valid  bool
	state  WeakState
}

// Get returns the slot's target handle, or false if it has been cleared.
func (w *WeakSlot) Get() (uintptr, bool) { return w.target, w.valid }

// Stats exposes collector/allocator counters for diagnostics (e.g. the
// heapviz dashboard) and for tests asserting sweep behavior.
type Stats struct {
	AllocatedBytes   uint64
	Threshold        uint64
	CycleCount       uint64
	EvacuationCount  uint64
	BlockCount       int
	FreeBlockCount   int
	LargeObjectCount int
	LargeObjectBytes uint64
	LiveCells        int
}

// Heap is the engine's allocator and collector.
type Heap struct {
	mu sync.Mutex

	opts      Options
	sizeClass *sizeclass.Table

	cells      map[uintptr]*cellEntry
	nextHandle uintptr

	blocks     []*block
	openBlock  *block
	freeBlocks []*block

	large []uintptr // sorted handles of large-object-space entries

	allocatedBytes uint64
	threshold      uint64

	shadowStack [][]uintptr

	weakSlots []*WeakSlot

	cycleCount      uint64
	evacuationCount uint64
}

// New creates an empty Heap.
func New(opts Options) *Heap {
	if opts.EvacuationHoleRatio <= 0 {
		opts.EvacuationHoleRatio = defaultEvacHoleRatio
	}
	return &Heap{
		opts:       opts,
		sizeClass:  sizeclass.Build(LargeCutoff, sizeclass.DefaultGrowthRatio),
		cells:      make(map[uintptr]*cellEntry, 1024),
		nextHandle: 16,
		threshold:  defaultInitialThreshold,
	}
}

// Allocate registers cell (whose header must not yet be initialized)
// with descriptor desc and size bytes, and returns the boxed cell Value
// a mutator can store. Allocation is a safepoint: if the allocated-bytes
// counter crosses the current threshold, a synchronous collection runs
// first, rooted at the supplied precise/conservative roots.
func (h *Heap) Allocate(cell class.Cell, desc *class.Descriptor, size uint32, roots RootSet) (value.Value, error) {
	h.mu.Lock()
	if uint64(h.allocatedBytes)+uint64(size) >= h.threshold {
		h.mu.Unlock()
		h.Collect(roots)
		h.mu.Lock()
	}
	if h.opts.HeapSizeBytes > 0 && h.allocatedBytes+uint64(size) > h.opts.HeapSizeBytes {
		h.mu.Unlock()
		h.Collect(roots) // emergency retry; evacuation is still decided by Collect's hole-ratio rule, not forced
		h.mu.Lock()
		if h.allocatedBytes+uint64(size) > h.opts.HeapSizeBytes {
			h.mu.Unlock()
			return 0, engerr.OutOfMemory(uint64(size), h.opts.HeapSizeBytes-h.allocatedBytes)
		}
	}

	cell.CellHeader().Init(desc, size)
	handle := h.nextHandle
	h.nextHandle += 16

	entry := &cellEntry{cell: cell, size: size}
	if int(size) >= LargeCutoff {
		entry.isLarge = true
		h.large = insertSorted(h.large, handle)
	} else {
		lineCount := (int(size) + LineSize - 1) / LineSize
		if lineCount < 1 {
			lineCount = 1
		}
		blockID, lineStart := h.allocateLines(lineCount)
		entry.blockID, entry.lineStart, entry.lineCount = blockID, lineStart, lineCount
	}
	h.cells[handle] = entry
	h.allocatedBytes += uint64(size)
	h.mu.Unlock()

	obs.Debugf("heap: allocated %s size=%d handle=%#x", desc.Name, size, handle)
	return value.EncodeCellAddr(handle), nil
}

func insertSorted(s []uintptr, v uintptr) []uintptr {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func (h *Heap) allocateLines(lineCount int) (blockID, lineStart int) {
	if lineCount > LinesPerBlock {
		lineCount = LinesPerBlock // oversized-but-sub-cutoff request: clamp, rare in practice
	}
	if h.openBlock == nil || h.openBlock.cursor+lineCount > LinesPerBlock {
		h.openBlock = h.takeFreeBlock()
	}
	b := h.openBlock
	lineStart = b.cursor
	for i := 0; i < lineCount; i++ {
		b.occupied[lineStart+i] = true
	}
	b.cursor += lineCount
	return b.id, lineStart
}

func (h *Heap) takeFreeBlock() *block {
	if n := len(h.freeBlocks); n > 0 {
		b := h.freeBlocks[n-1]
		h.freeBlocks = h.freeBlocks[:n-1]
		return b
	}
	b := newBlock(len(h.blocks))
	h.blocks = append(h.blocks, b)
	return b
}

// DerefCell resolves a boxed cell Value back to the live class.Cell
// behind its handle, or nil if the handle is stale (already swept) or v
// is not a cell.
func (h *Heap) DerefCell(v value.Value) class.Cell {
	if !value.IsCell(v) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.cells[value.AsCellAddr(v)]
	if !ok {
		return nil
	}
	return e.cell
}

// Deref resolves v to an *object.Object, implementing object.Context for
// the property-access method table. Returns nil for a non-Object cell
// (e.g. a string cell), matching the prototype-chain walk's
// expectation that only Objects appear there.
func (h *Heap) Deref(v value.Value) *object.Object {
	c := h.DerefCell(v)
	if c == nil {
		return nil
	}
	o, _ := c.(*object.Object)
	return o
}

// PushShadowFrame pushes an empty shadow-stack frame; Letroot pins roots
// into the topmost frame and PopShadowFrame releases it.
func (h *Heap) PushShadowFrame() {
	h.mu.Lock()
	h.shadowStack = append(h.shadowStack, nil)
	h.mu.Unlock()
}

// PopShadowFrame discards the most recently pushed shadow-stack frame
// and every root pinned in it.
func (h *Heap) PopShadowFrame() {
	h.mu.Lock()
	if n := len(h.shadowStack); n > 0 {
		h.shadowStack = h.shadowStack[:n-1]
	}
	h.mu.Unlock()
}

// Letroot pins v (if it is a cell) as a precise root in the current
// shadow-stack frame for the duration of the caller's scope; callers
// use it as `defer h.Letroot(v)()` mirroring the engine's letroot macro,
// or simply call it and ignore the no-op closure for values that don't
// need scope-exit handling (pinning only ever grows within a frame; the
// whole frame is released together by PopShadowFrame).
func (h *Heap) Letroot(v value.Value) func() {
	if !value.IsCell(v) {
		return func() {}
	}
	h.mu.Lock()
	if n := len(h.shadowStack); n > 0 {
		h.shadowStack[n-1] = append(h.shadowStack[n-1], value.AsCellAddr(v))
	}
	h.mu.Unlock()
	return func() {}
}

// NewWeakSlot creates a weak reference indirection targeting v's handle.
func (h *Heap) NewWeakSlot(v value.Value) *WeakSlot {
	slot := &WeakSlot{state: WeakUnmarked}
	if value.IsCell(v) {
		slot.target = value.AsCellAddr(v)
		slot.valid = true
	}
	h.mu.Lock()
	h.weakSlots = append(h.weakSlots, slot)
	h.mu.Unlock()
	return slot
}

// RootSet is the root enumeration input to Collect: pinned handles
// (globals, persistent handles, symbol table roots) plus an optional
// conservative scan source, a flat slice of Values representing the
// interpreter's live register/value stack window, tested word-by-word
// against the cell registry exactly as the data model's conservative
// scanner describes (scanning the real host goroutine stack is not
// something Go exposes safely, so the interpreter passes its own
// register-stack slice here instead - see DESIGN.md).
type RootSet struct {
	Pinned       []value.Value
	ConservativeScan []value.Value
}

// Stats returns a snapshot of allocator/collector counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		AllocatedBytes:   h.allocatedBytes,
		Threshold:        h.threshold,
		CycleCount:       h.cycleCount,
		EvacuationCount:  h.evacuationCount,
		BlockCount:       len(h.blocks),
		FreeBlockCount:   len(h.freeBlocks),
		LargeObjectCount: len(h.large),
		LargeObjectBytes: h.largeBytesLocked(),
		LiveCells:        len(h.cells),
	}
}

// SizeClasses returns the heap's static size-class table (ascending byte
// sizes), for diagnostics such as cmd/heapviz's per-class breakdown.
func (h *Heap) SizeClasses() []int { return h.sizeClass.Classes() }

func (h *Heap) largeBytesLocked() uint64 {
	var total uint64
	for _, handle := range h.large {
		if e, ok := h.cells[handle]; ok {
			total += uint64(e.size)
		}
	}
	return total
}

// Collect runs one full GC cycle: prepare, root enumeration, mark
// (optionally parallel), evacuation, weak-reference update, sweep, and
// commit, per the collection policy.
func (h *Heap) Collect(roots RootSet) {
	start := time.Now()
	h.mu.Lock()
	holeRatio := h.holeRatioLocked()
	evacuate := holeRatio >= h.opts.EvacuationHoleRatio
	h.mu.Unlock()

	seeds := h.enumerateRoots(roots)

	if h.opts.ParallelMarking && h.opts.GCThreads > 1 {
		h.markParallel(seeds, evacuate)
	} else {
		h.markSerial(seeds, evacuate)
	}

	h.updateWeakSlots()
	freedBytes, finalized := h.sweep()
	h.commit()

	h.mu.Lock()
	h.cycleCount++
	if evacuate {
		h.evacuationCount++
	}
	h.allocatedBytes -= freedBytes
	if h.allocatedBytes >= h.threshold/2 {
		h.threshold = uint64(float64(h.threshold) * defaultGrowthFactor)
	}
	h.mu.Unlock()

	if h.opts.VerboseGC {
		obs.Logger().Sugar().Debugw("gc cycle complete",
			"duration", time.Since(start), "freedBytes", freedBytes,
			"finalized", finalized, "evacuated", evacuate)
	}
}

// CollectIfNecessary triggers a collection only if the allocated-bytes
// counter has already crossed the threshold, matching the host-facing
// runtime.collect_if_necessary hook.
func (h *Heap) CollectIfNecessary(roots RootSet) {
	h.mu.Lock()
	need := h.allocatedBytes >= h.threshold
	h.mu.Unlock()
	if need {
		h.Collect(roots)
	}
}

func (h *Heap) holeRatioLocked() float64 {
	if len(h.blocks) == 0 {
		return 0
	}
	var holes, total int
	for _, b := range h.blocks {
		total += LinesPerBlock
		holes += LinesPerBlock - b.cursor
	}
	if total == 0 {
		return 0
	}
	return float64(holes) / float64(total)
}

func (h *Heap) enumerateRoots(roots RootSet) []uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := map[uintptr]bool{}
	var seeds []uintptr
	add := func(handle uintptr) {
		if _, ok := h.cells[handle]; ok && !seen[handle] {
			seen[handle] = true
			seeds = append(seeds, handle)
		}
	}

	for _, v := range roots.Pinned {
		if value.IsCell(v) {
			add(value.AsCellAddr(v))
		}
	}
	for _, frame := range h.shadowStack {
		for _, handle := range frame {
			add(handle)
		}
	}
	if h.opts.ConservativeMarking {
		for _, v := range roots.ConservativeScan {
			if value.IsCell(v) {
				add(value.AsCellAddr(v))
			}
		}
	}
	return seeds
}

func (h *Heap) visit(handle uintptr) (class.Cell, bool) {
	h.mu.Lock()
	e, ok := h.cells[handle]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.cell, true
}

func (h *Heap) markSerial(seeds []uintptr, evacuate bool) {
	queue := append([]uintptr(nil), seeds...)
	for _, handle := range seeds {
		h.markGrey(handle)
	}
	for len(queue) > 0 {
		handle := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		children := h.traceOne(handle, evacuate)
		for _, c := range children {
			if h.markGrey(c) {
				queue = append(queue, c)
			}
		}
		h.markBlack(handle)
	}
}

func (h *Heap) markParallel(seeds []uintptr, evacuate bool) {
	n := h.opts.GCThreads
	if n < 1 {
		n = 4
	}
	pool := worklist.NewPool(n)
	for i, s := range seeds {
		if h.markGrey(s) {
			pool.Push(i, worklist.Item(s))
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			pool.Run(w, func(it worklist.Item, push func(worklist.Item)) {
				handle := uintptr(it)
				children := h.traceOne(handle, evacuate)
				for _, c := range children {
					if h.markGrey(c) {
						push(worklist.Item(c))
					}
				}
				h.markBlack(handle)
			})
		}(w)
	}
	wg.Wait()
}

// markGrey attempts the White->Grey CAS; only the winner enqueues.
func (h *Heap) markGrey(handle uintptr) bool {
	cell, ok := h.visit(handle)
	if !ok {
		return false
	}
	return cell.CellHeader().CASColor(class.White, class.Grey)
}

func (h *Heap) markBlack(handle uintptr) {
	if cell, ok := h.visit(handle); ok {
		cell.CellHeader().SetColor(class.Black)
	}
}

// traceOne calls the cell's descriptor Trace hook (if any) and returns
// the handles it references. When evacuate is set and the cell lives in
// a fragmented block, it is re-homed to a fresh block: its handle (and
// thus every Value that names it) is unchanged, only its internal
// block/line placement moves, so no forwarding-pointer rewrite is
// needed (see the package doc's handle-indirection adaptation).
func (h *Heap) traceOne(handle uintptr, evacuate bool) []uintptr {
	h.mu.Lock()
	e, ok := h.cells[handle]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	var refs []uintptr
	desc := e.cell.CellHeader().Descriptor()
	if desc != nil && desc.Trace != nil {
		desc.Trace(e.cell, func(ref uintptr) { refs = append(refs, ref) })
	}

	if evacuate && !e.isLarge {
		h.mu.Lock()
		if b := h.blocks[e.blockID]; h.blockFragmentedLocked(b) {
			lineCount := e.lineCount
			newBlockID, newLineStart := h.allocateLines(lineCount)
			for i := 0; i < lineCount; i++ {
				delete(b.occupied, e.lineStart+i)
			}
			e.blockID, e.lineStart = newBlockID, newLineStart
		}
		h.mu.Unlock()
	}
	return refs
}

func (h *Heap) blockFragmentedLocked(b *block) bool {
	if b.cursor == 0 {
		return false
	}
	return float64(len(b.occupied))/float64(b.cursor) < (1 - h.opts.EvacuationHoleRatio)
}

func (h *Heap) updateWeakSlots() {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.weakSlots[:0]
	for _, slot := range h.weakSlots {
		if !slot.valid {
			continue
		}
		e, ok := h.cells[slot.target]
		if !ok || e.cell.CellHeader().Color() == class.White {
			slot.valid = false
			slot.state = WeakFree
			continue
		}
		slot.state = WeakUnmarked
		kept = append(kept, slot)
	}
	h.weakSlots = kept
}

// sweep reclaims every White cell: large-object entries are dropped
// from the sorted vector (and the registry, the only real Go reference,
// so the Go runtime frees the backing memory), block-resident cells'
// lines are freed and empty blocks returned to the free list, and any
// class with a Finalizer has it invoked first (no finalizer may
// allocate, per the concurrency contract).
func (h *Heap) sweep() (freedBytes uint64, finalized int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var keptLarge []uintptr
	for _, handle := range h.large {
		e := h.cells[handle]
		if e.cell.CellHeader().Color() == class.White {
			h.finalizeLocked(e)
			freedBytes += uint64(e.size)
			finalized++
			delete(h.cells, handle)
		} else {
			keptLarge = append(keptLarge, handle)
		}
	}
	h.large = keptLarge

	for handle, e := range h.cells {
		if e.isLarge {
			continue
		}
		if e.cell.CellHeader().Color() == class.White {
			h.finalizeLocked(e)
			freedBytes += uint64(e.size)
			finalized++
			if b := h.blocks[e.blockID]; b != nil {
				for i := 0; i < e.lineCount; i++ {
					delete(b.occupied, e.lineStart+i)
				}
			}
			delete(h.cells, handle)
		}
	}

	for _, b := range h.blocks {
		if len(b.occupied) == 0 && b.cursor > 0 {
			b.cursor = 0
			if h.openBlock == b {
				h.openBlock = nil
			}
			h.freeBlocks = append(h.freeBlocks, b)
		}
	}
	return freedBytes, finalized
}

func (h *Heap) finalizeLocked(e *cellEntry) {
	desc := e.cell.CellHeader().Descriptor()
	if desc != nil && desc.Finalizer != nil {
		desc.Finalizer(e.cell)
	}
}

// commit resets every surviving (Black) cell back to White for the next
// cycle, in lieu of the bit-swap trick a literal bitmap implementation
// would use (see DESIGN.md).
func (h *Heap) commit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.cells {
		e.cell.CellHeader().SetColor(class.White)
	}
}
