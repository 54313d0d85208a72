package service

import "fmt"

// PartialFetchError records a pod or container whose logs could not be read.
// It is logged and the unit is left out, it never fails a correlation.
type PartialFetchError struct {
	Namespace string
	Pod       string
	Container string
	Err       error
}

func (e *PartialFetchError) Error() string {
	if e.Container == "" {
		return fmt.Sprintf("failed to fetch logs for pod %s/%s: %v", e.Namespace, e.Pod, e.Err)
	}
	return fmt.Sprintf("failed to fetch logs for container %s of pod %s/%s: %v", e.Container, e.Namespace, e.Pod, e.Err)
}

func (e *PartialFetchError) Unwrap() error {
	return e.Err
}
