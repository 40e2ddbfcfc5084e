package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ProjectApp describes one application available inside a project, for
// example a notebook hub or a remote desktop.
type ProjectApp struct {
	// Name is the unique identifier of the app within the project.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MaxLength=63
	Name string `json:"name" yaml:"name"`

	// Type classifies the app ("jupyter", "desktop", ...). The gateway uses
	// it to decide which launch path applies.
	// +kubebuilder:validation:Required
	Type string `json:"type" yaml:"type"`

	// DisplayName is shown to users in place of Name when set.
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
}

// SpawnProfile describes one server profile offered to the notebook spawner
// for this project.
type SpawnProfile struct {
	// Name is the profile's unique slug within the project.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MaxLength=63
	Name string `json:"name" yaml:"name"`

	// DisplayName is the human-readable profile name.
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`

	// Description explains what the profile provides.
	// +kubebuilder:validation:MaxLength=500
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Image is the container image spawned for this profile.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Resources holds opaque resource requests passed through to the
	// spawner (cpu, memory, gpu, ...).
	Resources map[string]string `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// ProjectSpec defines a research project.
type ProjectSpec struct {
	// Description provides a human-readable description of the project.
	// +kubebuilder:validation:MaxLength=1000
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Apps lists the applications available inside this project.
	Apps []ProjectApp `json:"apps,omitempty" yaml:"apps,omitempty"`

	// Profiles lists the spawn profiles offered for this project.
	Profiles []SpawnProfile `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// +kubebuilder:object:root=true

// Project is the unit of authorization: access is granted to users whose
// groups list the project, and downstream identity is scoped to it.
type Project struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ProjectSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// ProjectList contains a list of Project
type ProjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Project `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Project{}, &ProjectList{})
}
