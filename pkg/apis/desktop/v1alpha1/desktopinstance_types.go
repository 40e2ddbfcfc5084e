package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Desktop instance phases reported by the desktop operator.
const (
	// PhaseRunning means the desktop pod is up and the connection endpoint
	// is reachable.
	PhaseRunning = "Running"
	// PhaseReady means the desktop finished provisioning and accepted at
	// least one health probe.
	PhaseReady = "Ready"
	// PhasePending means the desktop pod is still being scheduled or pulled.
	PhasePending = "Pending"
)

// DesktopInstanceSpec defines the desired state of a remote desktop.
type DesktopInstanceSpec struct {
	// User is the platform username the desktop belongs to.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MaxLength=63
	User string `json:"user" yaml:"user"`

	// Project is the research project the desktop is pinned to. A desktop
	// never spans projects; sessions detected as originating from this
	// instance are restricted to this project.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MaxLength=63
	Project string `json:"project" yaml:"project"`

	// Image is the desktop container image.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Connection is the remote display protocol ("rdp", "vnc").
	// +kubebuilder:default=rdp
	Connection string `json:"connection,omitempty" yaml:"connection,omitempty"`
}

// DesktopInstanceStatus defines the observed state of a remote desktop.
type DesktopInstanceStatus struct {
	// Phase is the lifecycle phase reported by the desktop operator.
	Phase string `json:"phase,omitempty" yaml:"phase,omitempty"`

	// PodIP is the address of the backing desktop pod. Used by the gateway
	// to recognize requests originating from inside the desktop.
	PodIP string `json:"podIP,omitempty" yaml:"podIP,omitempty"`

	// LinuxUser is the unix account the desktop session runs as.
	LinuxUser string `json:"linuxUser,omitempty" yaml:"linuxUser,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// DesktopInstance is a provisioned remote desktop for one user in one project.
type DesktopInstance struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DesktopInstanceSpec   `json:"spec,omitempty"`
	Status DesktopInstanceStatus `json:"status,omitempty"`
}

// IsRunning reports whether the desktop is in a phase where sessions can
// originate from it.
func (d *DesktopInstance) IsRunning() bool {
	return d.Status.Phase == PhaseRunning || d.Status.Phase == PhaseReady
}

// +kubebuilder:object:root=true

// DesktopInstanceList contains a list of DesktopInstance
type DesktopInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DesktopInstance `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DesktopInstance{}, &DesktopInstanceList{})
}
