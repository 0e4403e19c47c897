package destination

import "fmt"

// ConfigError reports invalid user-supplied configuration, detected before
// any destination-visible side effect.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid backup configuration: %s", e.Reason)
}

// UnreachableRemoteError reports that the configured remote host did not
// accept a trivial command at validation time.
type UnreachableRemoteError struct {
	Host string
}

func (e *UnreachableRemoteError) Error() string {
	return fmt.Sprintf("remote '%s' is not accessible", e.Host)
}

// MissingExecutableError reports that a registered tool could not be
// resolved on the PATH.
type MissingExecutableError struct {
	Tool string
	Path string
}

func (e *MissingExecutableError) Error() string {
	return fmt.Sprintf("required executable for '%s' not accessible: %s", e.Tool, e.Path)
}

// DestinationUnavailableError reports that the destination root is missing
// and could not be created.
type DestinationUnavailableError struct {
	Path string
}

func (e *DestinationUnavailableError) Error() string {
	return fmt.Sprintf("couldn't access or create destination '%s'", e.Path)
}

// PromotionError reports that the staging folder could not be moved to its
// final timestamped name. The produced data is still in staging; the next
// cycle overwrites and retries it.
type PromotionError struct {
	Staging string
	Target  string
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("failed to move '%s' to '%s'", e.Staging, e.Target)
}
