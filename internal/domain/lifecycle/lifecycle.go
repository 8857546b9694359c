// Пакет lifecycle — конечный автомат жизненного цикла документа.
//
//	nonexistent → stored → stored (replace, режим может смениться)* → deleted
//
// deleted — конечное состояние: запись остаётся в хранилище, но
// недоступна для обычных операций. Автомат не хранит состояние, оно
// выводится из записи.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
)

// State — состояние документа.
type State string

const (
	StateNonexistent State = "nonexistent"
	StateStored      State = "stored"
	StateDeleted     State = "deleted"
)

// Operation — операция над документом.
type Operation string

const (
	OpStore    Operation = "store"
	OpRetrieve Operation = "retrieve"
	OpReplace  Operation = "replace"
	OpDelete   Operation = "delete"
	OpGet      Operation = "get"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateNonexistent: {StateStored: true},
	StateStored:      {StateStored: true, StateDeleted: true},
	StateDeleted:     {}, // Конечное состояние
}

// allowedOperations — допустимые операции для каждого состояния.
var allowedOperations = map[State]map[Operation]bool{
	StateNonexistent: {OpStore: true},
	StateStored:      {OpRetrieve: true, OpReplace: true, OpDelete: true, OpGet: true},
	StateDeleted:     {},
}

// targetState — состояние после успешной операции.
var targetState = map[Operation]State{
	OpStore:   StateStored,
	OpReplace: StateStored,
	OpDelete:  StateDeleted,
}

// StateOf возвращает состояние записи; nil — nonexistent.
func StateOf(rec *model.DocumentRecord) State {
	switch {
	case rec == nil:
		return StateNonexistent
	case !rec.IsActive:
		return StateDeleted
	default:
		return StateStored
	}
}

// CanTransition проверяет, допустим ли переход.
func CanTransition(from, to State) bool {
	return validTransitions[from][to]
}

// CanPerform проверяет, допустима ли операция в состоянии.
func CanPerform(s State, op Operation) bool {
	return allowedOperations[s][op]
}

// Check проверяет операцию над записью и возвращает доменную ошибку:
// ErrDocumentNotFound для отсутствующей записи, ErrDocumentDeleted для
// удалённой, TransitionError для прочих недопустимых сочетаний.
func Check(rec *model.DocumentRecord, op Operation) error {
	s := StateOf(rec)
	if CanPerform(s, op) {
		if to, ok := targetState[op]; ok && !CanTransition(s, to) {
			return &TransitionError{From: s, Op: op}
		}
		return nil
	}

	switch s {
	case StateNonexistent:
		return docerr.ErrDocumentNotFound
	case StateDeleted:
		return fmt.Errorf("%w: %s", docerr.ErrDocumentDeleted, rec.ID)
	default:
		return &TransitionError{From: s, Op: op}
	}
}

// TransitionError — операция недопустима в текущем состоянии.
type TransitionError struct {
	From State
	Op   Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: операция %s недопустима в состоянии %s", e.Op, e.From)
}
