// Package v1alpha1 contains API Schema definitions for the desktop v1alpha1 API group.
//
// A DesktopInstance is a remote desktop provisioned for one user inside one
// project. Provisioning and lifecycle are owned by the desktop operator; the
// gateway only reads instances to answer two questions: does this user have a
// running desktop, and is the current request originating from inside one.
//
// # API Group: desktop.tregate.io/v1alpha1
//
// +kubebuilder:object:generate=true
// +groupName=desktop.tregate.io
package v1alpha1
