package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// UserSpec defines the identity record for a platform user.
type UserSpec struct {
	// Email is the user's primary email address.
	// +kubebuilder:validation:MaxLength=254
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// Groups lists the names of the identity groups this user belongs to.
	// Group membership is the only edge the gateway follows when deciding
	// project access.
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// UserStatus defines the observed state of User.
type UserStatus struct {
	// Provisioned indicates whether the identity operator has finished
	// reconciling this user against the identity provider.
	Provisioned bool `json:"provisioned,omitempty" yaml:"provisioned,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// User is a read-only identity record consumed by the gateway.
type User struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   UserSpec   `json:"spec,omitempty"`
	Status UserStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// UserList contains a list of User
type UserList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []User `json:"items"`
}

func init() {
	SchemeBuilder.Register(&User{}, &UserList{})
}
