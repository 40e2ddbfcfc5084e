// Package v1alpha1 contains API Schema definitions for the research v1alpha1 API group.
//
// A Project is the unit of authorization in the platform: users reach a
// project through group membership, and every credential the gateway issues
// downstream is scoped to exactly one project. The project record also lists
// the applications available inside it and the spawn profiles offered to the
// notebook spawner.
//
// # API Group: research.tregate.io/v1alpha1
//
// +kubebuilder:object:generate=true
// +groupName=research.tregate.io
package v1alpha1
