package schema

// Run message version tags. Each tag binds one request shape to one
// response generation, forever. Interoperating with a daemon of a known
// generation requires these exact values.
const (
	RunVersion5 uint32 = 5 // request gen 7, response gen 7
	RunVersion6 uint32 = 6 // request gen 7, response gen 8
	RunVersion7 uint32 = 7 // request gen 7, response gen 9
	RunVersion8 uint32 = 8 // request gen 7, response gen 10

	// RunVersionCurrent is the preferred version: the highest defined.
	RunVersionCurrent = RunVersion8
)

// Response generation tags carried on the wire by run responses.
const (
	ResponseVersion7  uint32 = 7
	ResponseVersion8  uint32 = 8
	ResponseVersion9  uint32 = 9
	ResponseVersion10 uint32 = 10
)

// Stop message versions. Independent lineage from the run message.
const (
	StopVersion1 uint32 = 1

	StopVersionCurrent = StopVersion1
)

// responseVersionByRun pairs each run message version with the response
// generation the daemon replies with.
var responseVersionByRun = map[uint32]uint32{
	RunVersion5: ResponseVersion7,
	RunVersion6: ResponseVersion8,
	RunVersion7: ResponseVersion9,
	RunVersion8: ResponseVersion10,
}

// ResponseVersionFor returns the response generation paired with a run
// message version, and whether the run version is defined at all.
func ResponseVersionFor(runVersion uint32) (uint32, bool) {
	v, ok := responseVersionByRun[runVersion]
	return v, ok
}
