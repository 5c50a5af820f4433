package emulators

// ImageContainer describes an emulator image and the ports it listens on.
type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
	EmulatorGRPCPort string
}

// GCImageContainer adds the project every Google emulator is started for.
type GCImageContainer struct {
	ImageContainer
	ProjectID       string
	SetEnvVariables bool
}

// EmulatorConnection is the address a started emulator can be reached on.
type EmulatorConnection struct {
	EmulatorAddress string
}
