package worker

// FirecrackerConfig describes the kernel and rootfs a worker microVM
// boots from. Unlike the teacher's sandbox/firecracker package, which
// maintains a pool of VMs with overlay filesystems and boot snapshots
// per language runtime, this backend boots one plain microVM per
// worker: the worker pool already supplies reuse and bounded
// concurrency, so a second layer of VM pooling inside the backend
// would duplicate Pool's own bookkeeping.
//
// Defined outside the linux-only backend file so callers can build
// FirecrackerConfig values on any platform even though only linux can
// actually spawn workers from one.
type FirecrackerConfig struct {
	KernelPath  string
	RootFSPath  string
	SocketDir   string
	VCPUs       int64
	MemSizeMB   int64
	BootArgs    string
	VsockCIDGen func() uint32
}
