// Package v1alpha1 contains API Schema definitions for the identity v1alpha1 API group.
//
// This package defines the read-only identity resources the gateway consumes:
// User records carrying group membership, and Group records carrying project
// membership. Both are owned by the platform's identity operator; tregate only
// reads them when making authorization decisions.
//
// # API Group: identity.tregate.io/v1alpha1
//
// Example:
//
//	apiVersion: identity.tregate.io/v1alpha1
//	kind: User
//	metadata:
//	  name: alice
//	spec:
//	  email: alice@example.org
//	  groups:
//	    - asthma-researchers
//
// +kubebuilder:object:generate=true
// +groupName=identity.tregate.io
package v1alpha1
