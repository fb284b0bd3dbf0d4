package installer

import (
	"errors"

	"github.com/seapear/AffinityOnLinux/internal/payload"
	"github.com/seapear/AffinityOnLinux/internal/pipeline"
	"github.com/seapear/AffinityOnLinux/internal/shims"
)

var (
	// ErrDetectionFailure means the host identification could not be read.
	ErrDetectionFailure = errors.New("distribution detection failed")

	// ErrCredentialRejected means the elevation probe failed.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrCredentialUnavailable means no credential could be obtained.
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrUnsupportedDistribution means no stage sequence exists for the
	// detected family.
	ErrUnsupportedDistribution = pipeline.ErrUnsupportedDistribution

	// ErrCommandFailed is matched by pipeline command failures.
	ErrCommandFailed = pipeline.ErrCommandFailed

	// ErrPreflightFailed is matched by failed pre-flight checks.
	ErrPreflightFailed = pipeline.ErrPreflightFailed

	// ErrDownloadFailure is matched by auxiliary fetch failures. Never fatal.
	ErrDownloadFailure = shims.ErrDownloadFailure

	// ErrPayloadInstallFailure is matched by application install failures.
	// Never fatal, but the run is reported as a partial success.
	ErrPayloadInstallFailure = payload.ErrPayloadInstallFailure
)
