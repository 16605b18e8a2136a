package trap

import "testing"

// The scenarios below are documented, non-executable fixtures: each
// names the end-to-end behavior a real QEMU run is expected to show,
// the way biscuit's own test/ harness drives a real VM outside `go
// test`'s normal path rather than simulating one in-process. Building
// and booting a user ELF under go test would mean re-implementing an
// emulator. TestEndToEndScenariosRequireQEMU, which would run them,
// always skips; TestEndToEndScenariosDocumented only checks that each
// scenario records an expected output. They exist so the expected
// behavior is recorded next to the code that must produce it.

type scenario struct {
	name           string
	description    string
	expectedOutput string
	expectedExit   int
}

var endToEndScenarios = []scenario{
	{
		name:           "init_boot",
		description:    "load an ELF whose entry writes \"ok\\n\" to fd 1 then exits 0",
		expectedOutput: "ok\n",
		expectedExit:   0,
	},
	{
		name:           "yield_loop",
		description:    "a task reads the clock, yields until 3000us have elapsed, then prints and exits 0",
		expectedOutput: "Test sleep OK!",
		expectedExit:   0,
	},
	{
		name:           "illegal_instruction",
		description:    "a user program executes sret; kernel logs \"Illegal instruction\" and exits the task non-zero",
		expectedOutput: "Illegal instruction",
		expectedExit:   -1,
	},
	{
		name:           "user_store_fault",
		description:    "user writes to virtual address 0; kernel logs a page-fault message and exits the task non-zero",
		expectedOutput: "page fault",
		expectedExit:   -1,
	},
	{
		name:           "cross_page_syscall_buffer",
		description:    "the vendor test syscall is invoked with a buffer spanning three pages filled with \"CROSS-PAGE-TEST|\"",
		expectedOutput: "CROSS-PAGE-TEST|",
		expectedExit:   0,
	},
	{
		name:           "recursive_lock",
		description:    "a kernel test acquires the same spin lock twice on one hart and panics",
		expectedOutput: "dead lock occur",
		expectedExit:   -1,
	},
}

func TestEndToEndScenariosDocumented(t *testing.T) {
	for _, sc := range endToEndScenarios {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			if sc.expectedOutput == "" {
				t.Fatalf("scenario %s: missing expected console output", sc.name)
			}
		})
	}
}

func TestEndToEndScenariosRequireQEMU(t *testing.T) {
	t.Skip("requires a running qemu-system-riscv64 instance; see cmd/kmonitor")
}
