package core

// ServiceRegistry holds the wired domain services.
type ServiceRegistry struct {
	Manager   *Manager
	Stats     *Aggregator
	Alerts    *Evaluator
	Writer    *Writer
	Retention *RetentionManager
}
