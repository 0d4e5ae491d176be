// internal/action/codec.go
package action

import (
	"errors"
	"fmt"
)

// ErrInvalidDecision возвращается, если решение политики вне диапазона [0, nodes^owners)
var ErrInvalidDecision = errors.New("invalid decision")

// Space описывает пространство решений: число владельцев и узлов
type Space struct {
	Owners int
	Nodes  int
}

// Size возвращает nodes^owners. Второе значение false, если число не помещается в int.
func (s Space) Size() (int, bool) {
	if s.Owners < 1 || s.Nodes < 1 {
		return 0, false
	}
	size := 1
	for i := 0; i < s.Owners; i++ {
		if size > maxInt/s.Nodes {
			return 0, false
		}
		size *= s.Nodes
	}
	return size, true
}

const maxInt = int(^uint(0) >> 1)

// Decode раскладывает решение по основанию Nodes: цифра i + 1 - узел владельца i (1..Nodes)
func (s Space) Decode(decision int) ([]int, error) {
	size, ok := s.Size()
	if !ok {
		return nil, fmt.Errorf("%w: space %d^%d is not representable", ErrInvalidDecision, s.Nodes, s.Owners)
	}
	if decision < 0 || decision >= size {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidDecision, decision, size)
	}
	return s.Digits(decision), nil
}

// Digits извлекает цифры без проверки диапазона: старшие разряды за пределами
// Owners отбрасываются, так что Digits(5) при Nodes=3, Owners=1 даёт [3].
// Используется для диагностики сырых выходов политики; симулятор вызывает Decode.
func (s Space) Digits(decision int) []int {
	if s.Owners < 1 || s.Nodes < 1 || decision < 0 {
		return nil
	}
	nodes := make([]int, s.Owners)
	for i := range nodes {
		nodes[i] = decision%s.Nodes + 1
		decision /= s.Nodes
	}
	return nodes
}

// Encode - обратная операция к Decode
func (s Space) Encode(nodes []int) (int, error) {
	if _, ok := s.Size(); !ok {
		return 0, fmt.Errorf("%w: space %d^%d is not representable", ErrInvalidDecision, s.Nodes, s.Owners)
	}
	if len(nodes) != s.Owners {
		return 0, fmt.Errorf("%w: got %d node choices for %d owners", ErrInvalidDecision, len(nodes), s.Owners)
	}

	decision := 0
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i] < 1 || nodes[i] > s.Nodes {
			return 0, fmt.Errorf("%w: node %d of owner %d not in [1, %d]", ErrInvalidDecision, nodes[i], i, s.Nodes)
		}
		decision = decision*s.Nodes + (nodes[i] - 1)
	}
	return decision, nil
}

// Decode - сокращение для Space{owners, nodes}.Decode
func Decode(decision, owners, nodes int) ([]int, error) {
	return Space{Owners: owners, Nodes: nodes}.Decode(decision)
}

// Encode - сокращение для Space{len(choices), nodes}.Encode
func Encode(choices []int, nodes int) (int, error) {
	return Space{Owners: len(choices), Nodes: nodes}.Encode(choices)
}
