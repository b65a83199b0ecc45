package docker

// Labels attached to every sandbox container. They are the cross-check
// between the runtime and the container registry: reconciliation matches
// containers to registry rows through them.
const (
	LabelManaged   = "training.sandbox"
	LabelSubdomain = "training.subdomain"
	LabelSubject   = "training.subject"
	LabelExercise  = "training.exercise"
)

// SandboxLabels builds the full label set for a new sandbox container.
func SandboxLabels(subdomain, subject, exercise string) map[string]string {
	return map[string]string{
		LabelManaged:   "true",
		LabelSubdomain: subdomain,
		LabelSubject:   subject,
		LabelExercise:  exercise,
	}
}

// IsManagedSandbox reports whether a container's labels mark it as one of ours.
func IsManagedSandbox(labels map[string]string) bool {
	return labels[LabelManaged] == "true"
}

// SandboxIdentity extracts the subdomain, subject, and exercise labels.
// Missing labels come back as empty strings.
func SandboxIdentity(labels map[string]string) (subdomain, subject, exercise string) {
	return labels[LabelSubdomain], labels[LabelSubject], labels[LabelExercise]
}
