package linked_hashmap

import "container/list"

// LinkedHashmap provides a basic linked hashmap container. It maintains
// insertion order via a linked list, and the additional hashmap allows O(1)
// lookup, replacement or removal of any element by key.
// Not threadsafe.
type LinkedHashmap struct {
	linkedList *list.List
	hashMap    map[string]*list.Element
}

func NewLinkedHashmap(sizeEst int) *LinkedHashmap {
	return &LinkedHashmap{
		linkedList: list.New(),
		hashMap:    make(map[string]*list.Element, sizeEst),
	}
}

// We store both the key and value in the linked list so iteration can
// report the key.
type kv struct {
	key   string
	value interface{}
}

// Returns the first element, or nil if the list is empty.
func (l *LinkedHashmap) Front() interface{} {
	head := l.linkedList.Front()
	if head == nil {
		return nil
	}
	return head.Value.(*kv).value
}

// Set stores val under key.  An existing key keeps its position and only has
// its value replaced; a new key is appended to the back.
func (l *LinkedHashmap) Set(key string, val interface{}) {
	if elem, ok := l.hashMap[key]; ok {
		elem.Value.(*kv).value = val
		return
	}
	l.hashMap[key] = l.linkedList.PushBack(&kv{key: key, value: val})
}

// Note: Panics if remove is called with a key not in the hashmap.
func (l *LinkedHashmap) Remove(key string) {
	listElem := l.hashMap[key]
	delete(l.hashMap, key)
	l.linkedList.Remove(listElem)
}

func (l *LinkedHashmap) Len() int {
	return len(l.hashMap)
}

// Same semantics as the golang map -- returns the elements + true if the key
// exists in the map and nil, false otherise.
func (l *LinkedHashmap) Get(key string) (interface{}, bool) {
	elem, ok := l.hashMap[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*kv).value, true
}

// Keys returns the keys in insertion order.
func (l *LinkedHashmap) Keys() []string {
	keys := make([]string, 0, len(l.hashMap))
	for e := l.linkedList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*kv).key)
	}
	return keys
}

// Do calls f for every entry in insertion order.  f must not mutate the map.
func (l *LinkedHashmap) Do(f func(key string, val interface{})) {
	for e := l.linkedList.Front(); e != nil; e = e.Next() {
		keyVal := e.Value.(*kv)
		f(keyVal.key, keyVal.value)
	}
}

// Copy returns an independent map holding the same entries in the same order.
func (l *LinkedHashmap) Copy() *LinkedHashmap {
	res := NewLinkedHashmap(l.Len())
	l.Do(func(key string, val interface{}) {
		res.Set(key, val)
	})
	return res
}
