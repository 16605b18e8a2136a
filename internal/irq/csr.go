package irq

// readSstatusSIE reads the sstatus CSR's SIE bit (bit 1) directly, and
// setSstatusSIE/clearSstatusSIE set/clear it with CSRRS/CSRRC; none of the three has
// a portable Go expression, so each is a thin assembly stub in the
// same "Go signature, riscv64 .s body" shape internal/swtch and
// internal/trap use for their own CSR/ECALL-only primitives.
//
//go:noescape
func readSstatusSIE() bool

//go:noescape
func setSstatusSIE()

//go:noescape
func clearSstatusSIE()

// UseRealCSRs switches GlobalEnable/GlobalDisable/GetState from the
// plain-bool default to the real sstatus.SIE bit, via SetCSRFuncs.
// Boot code calls this once before handing off to sched.Loop; go test
// never does, since there's no sstatus CSR under a hosted GOOS.
func UseRealCSRs() {
	SetCSRFuncs(setSstatusSIE, clearSstatusSIE, readSstatusSIE)
}
