package metadata

/** @brief Identifies a pass within a frame graph. Monotonic, never reused. */
type PassHandle uint64

const InvalidPassHandle PassHandle = PassHandle(InvalidIDUint64)

/** @brief The GPU submission lane a pass is recorded against. */
type QueueType uint8

const (
	QueueTypeGraphics QueueType = iota
	QueueTypeCompute
	QueueTypeCopy
)

func (q QueueType) String() string {
	switch q {
	case QueueTypeGraphics:
		return "graphics"
	case QueueTypeCompute:
		return "compute"
	case QueueTypeCopy:
		return "copy"
	}
	return "unknown"
}

/**
 * @brief The closed set of pass variants. A kind is a tag on the shared
 * pass fields, not a behavioural subclass; cloning preserves it.
 */
type PassKind uint8

const (
	PassKindRaster PassKind = iota
	PassKindCompute
	PassKindCopy
)

func (k PassKind) String() string {
	switch k {
	case PassKindRaster:
		return "raster"
	case PassKindCompute:
		return "compute"
	case PassKindCopy:
		return "copy"
	}
	return "unknown"
}

/** @brief Whether a pass runs once per active view or once for the frame. */
type PassScope uint8

const (
	PassScopeShared PassScope = iota
	PassScopePerView
)

/**
 * @brief The state a resource must be in at an access point. The graph
 * compares required states across consecutive accesses and emits a
 * transition wherever they differ; backends translate transitions into
 * their native barrier primitive.
 */
type ResourceState uint8

const (
	ResourceStateUndefined ResourceState = iota
	ResourceStateRenderTarget
	ResourceStateDepthWrite
	ResourceStateShaderRead
	ResourceStateUnorderedAccess
	ResourceStateCopySource
	ResourceStateCopyDest
	ResourceStatePresent
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateUndefined:
		return "undefined"
	case ResourceStateRenderTarget:
		return "render_target"
	case ResourceStateDepthWrite:
		return "depth_write"
	case ResourceStateShaderRead:
		return "shader_read"
	case ResourceStateUnorderedAccess:
		return "unordered_access"
	case ResourceStateCopySource:
		return "copy_source"
	case ResourceStateCopyDest:
		return "copy_dest"
	case ResourceStatePresent:
		return "present"
	}
	return "unknown"
}

/** @brief One declared access of a pass: which resource, in which state. */
type ResourceAccess struct {
	Handle        ResourceHandle
	RequiredState ResourceState
}

/**
 * @brief A required state change for a resource, emitted by the graph
 * in execution order. Before is the state at the end of the previous
 * access, After is the state the next access requires.
 */
type Transition struct {
	Handle ResourceHandle
	Before ResourceState
	After  ResourceState
}

/**
 * @brief Advisory cost estimate for a pass. Used only as a scheduling
 * heuristic; correctness never depends on these numbers.
 */
type PassCost struct {
	CPUTimeMicros uint64
	GPUTimeMicros uint64
	MemoryBytes   uint64
}
